package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-screening/internal/config"
	"alfredoptarigan/cv-screening/internal/models"
	"alfredoptarigan/cv-screening/internal/repositories"
	"alfredoptarigan/cv-screening/internal/services"
)

// settleDelay waits out the burst of write events a copy produces.
const settleDelay = 2 * time.Second

// Reference documents are typed by filename prefix.
var typePrefixes = []struct {
	prefix  string
	docType models.DocumentType
}{
	{"job_description", models.DocumentTypeJobDescription},
	{"jd_", models.DocumentTypeJobDescription},
	{"case_study", models.DocumentTypeCaseStudy},
	{"scoring_rubric", models.DocumentTypeScoringRubric},
	{"rubric", models.DocumentTypeScoringRubric},
}

type ingester struct {
	processor services.DocumentProcessor
	queue     *services.InlineQueue
}

func main() {
	dir := flag.String("dir", "./reference_docs", "directory holding reference PDFs")
	watch := flag.Bool("watch", false, "keep running and ingest new files as they appear")
	flag.Parse()

	cfg := config.Load()
	config.InitLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("❌ Invalid configuration: %v", err)
	}

	logrus.Info("🚀 Starting document ingestion...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := config.InitDatabase(cfg)
	if err != nil {
		logrus.Fatalf("❌ Failed to initialize database: %v", err)
	}

	docRepo := repositories.NewDocumentRepository(db)
	embeddingRepo := repositories.NewEmbeddingRepository(db)

	llmClient, err := services.NewLLMClient(ctx, cfg.LLM)
	if err != nil {
		logrus.Fatalf("❌ Failed to initialize LLM client: %v", err)
	}

	index, closeIndex, err := services.NewSimilarityIndexFromConfig(ctx, cfg.VectorStore, cfg.LLM.EmbeddingDimension, embeddingRepo)
	if err != nil {
		logrus.Fatalf("❌ Failed to initialize similarity index: %v", err)
	}
	defer closeIndex()

	chunker, err := services.NewTextChunker(services.ChunkOptionsFromConfig(cfg.Chunking))
	if err != nil {
		logrus.Fatalf("❌ Failed to initialize text chunker: %v", err)
	}

	queue := services.NewInlineQueue()
	processor := services.NewDocumentProcessor(
		docRepo,
		services.NewStorageService(cfg.Storage.UploadPath),
		index,
		queue,
		services.ProcessorOptionsFromConfig(cfg.Storage, cfg.Extraction),
	)
	indexer := services.NewEmbeddingIndexer(docRepo, embeddingRepo, llmClient, chunker, index, cfg.LLM.EmbeddingDimension)

	queue.Register(services.TaskExtractText, processor.ExtractText)
	queue.Register(services.TaskGenerateEmbeddings, indexer.GenerateEmbeddings)

	in := &ingester{processor: processor, queue: queue}

	failCount := in.ingestDir(ctx, *dir)

	if *watch {
		if err := in.watchDir(ctx, *dir); err != nil {
			logrus.Fatalf("❌ Failed to watch %s: %v", *dir, err)
		}
		return
	}

	if failCount > 0 {
		logrus.Warn("⚠️  Some documents failed to ingest. Please check the logs above.")
		os.Exit(1)
	}

	logrus.Info("✅ All documents ingested successfully!")
}

func (in *ingester) ingestDir(ctx context.Context, dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logrus.Fatalf("❌ Failed to read %s: %v", dir, err)
	}

	var successCount, skipCount, failCount int
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}

		switch err := in.ingestFile(ctx, filepath.Join(dir, entry.Name())); {
		case err == nil:
			successCount++
		case errors.Is(err, services.ErrDuplicateFile), errors.Is(err, errUntyped):
			skipCount++
		default:
			failCount++
		}
	}

	logrus.WithFields(logrus.Fields{
		"successful": successCount,
		"skipped":    skipCount,
		"failed":     failCount,
	}).Info("📊 Ingestion summary")

	return failCount
}

var errUntyped = errors.New("no document type for filename")

func (in *ingester) ingestFile(ctx context.Context, path string) error {
	log := logrus.WithField("path", path)

	docType, ok := documentTypeFor(filepath.Base(path))
	if !ok {
		log.Warn("⚠️  Filename has no known type prefix, skipping")
		return errUntyped
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Error("❌ Failed to read file")
		return err
	}

	doc, err := in.processor.Ingest(ctx, services.IngestInput{
		Data:         data,
		ContentType:  "application/pdf",
		Filename:     filepath.Base(path),
		DocumentType: docType,
	})
	if err != nil {
		if errors.Is(err, services.ErrDuplicateFile) {
			log.Info("⏭️  Already ingested, skipping")
		} else {
			log.WithError(err).Error("❌ Failed to ingest document")
		}
		return err
	}

	// Extraction enqueues embedding generation, which the inline queue runs
	// before this returns.
	if err := in.queue.Enqueue(ctx, services.TaskExtractText, doc.ID); err != nil {
		log.WithError(err).Error("❌ Failed to process document")
		return err
	}

	log.WithFields(logrus.Fields{"document_id": doc.ID, "type": docType}).Info("✅ Document ingested")
	return nil
}

func documentTypeFor(filename string) (models.DocumentType, bool) {
	name := strings.ToLower(filename)
	for _, p := range typePrefixes {
		if strings.HasPrefix(name, p.prefix) {
			return p.docType, true
		}
	}
	return "", false
}

// watchDir ingests PDFs created in dir until ctx is cancelled.
func (in *ingester) watchDir(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	logrus.Infof("👀 Watching %s for new documents", dir)

	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
		wg      sync.WaitGroup
	)
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, t := range pending {
				if t.Stop() {
					wg.Done()
				}
			}
			mu.Unlock()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".pdf") {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			path := event.Name
			mu.Lock()
			if t, ok := pending[path]; ok && t.Stop() {
				t.Reset(settleDelay)
			} else {
				wg.Add(1)
				pending[path] = time.AfterFunc(settleDelay, func() {
					defer wg.Done()
					mu.Lock()
					delete(pending, path)
					mu.Unlock()

					in.ingestFile(ctx, path)
				})
			}
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Warn("⚠️  File watcher error")
		}
	}
}
