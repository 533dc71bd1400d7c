package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-screening/internal/config"
	"alfredoptarigan/cv-screening/internal/handlers"
	"alfredoptarigan/cv-screening/internal/repositories"
	"alfredoptarigan/cv-screening/internal/services"
)

func main() {
	// Load configuration
	cfg := config.Load()
	config.InitLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("❌ Invalid configuration: %v", err)
	}
	logrus.Info("✅ Config loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := config.InitDatabase(cfg)
	if err != nil {
		logrus.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Initialize repositories
	docRepo := repositories.NewDocumentRepository(db)
	embeddingRepo := repositories.NewEmbeddingRepository(db)
	evalRepo := repositories.NewEvaluationRepository(db)
	logrus.Info("✅ Repositories initialized successfully")

	// Initialize services
	storageService := services.NewStorageService(cfg.Storage.UploadPath)
	if err := storageService.EnsureUploadDir(); err != nil {
		logrus.Fatalf("❌ Failed to create upload directory: %v", err)
	}

	llmClient, err := services.NewLLMClient(ctx, cfg.LLM)
	if err != nil {
		logrus.Fatalf("❌ Failed to initialize LLM client: %v", err)
	}
	logrus.WithField("provider", cfg.LLM.Provider).Info("✅ LLM client initialized successfully")

	index, closeIndex, err := services.NewSimilarityIndexFromConfig(ctx, cfg.VectorStore, cfg.LLM.EmbeddingDimension, embeddingRepo)
	if err != nil {
		logrus.Fatalf("❌ Failed to initialize similarity index: %v", err)
	}
	defer closeIndex()

	chunker, err := services.NewTextChunker(services.ChunkOptionsFromConfig(cfg.Chunking))
	if err != nil {
		logrus.Fatalf("❌ Failed to initialize text chunker: %v", err)
	}

	broker, err := services.NewBrokerFromConfig(cfg.Worker)
	if err != nil {
		logrus.Fatalf("❌ Failed to initialize task broker: %v", err)
	}
	defer broker.Close()

	worker := services.NewWorker(broker, evalRepo, services.WorkerOptionsFromConfig(cfg.Worker))

	processor := services.NewDocumentProcessor(
		docRepo,
		storageService,
		index,
		worker,
		services.ProcessorOptionsFromConfig(cfg.Storage, cfg.Extraction),
	)
	indexer := services.NewEmbeddingIndexer(docRepo, embeddingRepo, llmClient, chunker, index, cfg.LLM.EmbeddingDimension)
	evaluator := services.NewEvaluatorService(evalRepo, docRepo, llmClient, index, services.EvaluatorOptionsFromConfig(cfg.Evaluation))
	logrus.Info("✅ Services initialized successfully")

	worker.Register(services.TaskExtractText, processor.ExtractText)
	worker.Register(services.TaskGenerateEmbeddings, indexer.GenerateEmbeddings)
	worker.Register(services.TaskEvaluate, evaluator.EvaluateCandidate)

	if err := worker.Start(context.Background()); err != nil {
		logrus.Fatalf("❌ Failed to start worker: %v", err)
	}

	// Initialize handlers
	app := handlers.NewApp(handlers.Handlers{
		Upload:     handlers.NewUploadHandler(processor, worker, cfg.Storage.MaxFileSize),
		Evaluation: handlers.NewEvaluationHandler(evalRepo, docRepo, worker),
		Result:     handlers.NewResultHandler(evalRepo),
	}, handlers.AppOptions{
		// Two files plus multipart overhead.
		BodyLimit:     int(2*cfg.Storage.MaxFileSize) + 1<<20,
		RequestLogger: true,
	})

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logrus.Info("🛑 Shutting down server...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("❌ Server forced to shutdown: %v", err)
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	logrus.Infof("🚀 Server starting on %s", addr)

	if err := app.Listen(addr); err != nil {
		logrus.Errorf("❌ Failed to start server: %v", err)
		worker.Stop()
		os.Exit(1)
	}

	worker.Stop()
	logrus.Info("👋 Shutdown complete")
}
