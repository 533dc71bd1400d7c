package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-screening/internal/config"
	"alfredoptarigan/cv-screening/internal/repositories"
)

// NewSimilarityIndexFromConfig builds the configured index backend. The
// returned close function releases its connections.
func NewSimilarityIndexFromConfig(
	ctx context.Context,
	cfg config.VectorStoreConfig,
	dimension int,
	embeddingRepo repositories.EmbeddingRepository,
) (SimilarityIndex, func() error, error) {
	switch cfg.Backend {
	case config.VectorBackendQdrant:
		index, err := NewQdrantIndex(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection, dimension)
		if err != nil {
			return nil, nil, err
		}
		if err := index.InitCollection(ctx); err != nil {
			index.Close()
			return nil, nil, fmt.Errorf("failed to initialize qdrant collection: %w", err)
		}
		logrus.Infof("✅ Qdrant index ready (collection %s)", cfg.QdrantCollection)
		return index, index.Close, nil

	case config.VectorBackendRelational, "":
		logrus.Info("✅ Relational similarity index ready")
		return NewRelationalIndex(embeddingRepo), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown vector backend %q", ErrInvalidArgument, cfg.Backend)
	}
}

func NewBrokerFromConfig(cfg config.WorkerConfig) (Broker, error) {
	switch cfg.Backend {
	case config.QueueBackendRabbitMQ:
		return NewRabbitMQBroker(cfg.RabbitMQURL, cfg.RabbitMQQueue, cfg.Concurrency)
	case config.QueueBackendMemory, "":
		return NewMemoryBroker(100), nil
	default:
		return nil, fmt.Errorf("%w: unknown queue backend %q", ErrInvalidArgument, cfg.Backend)
	}
}

func ChunkOptionsFromConfig(cfg config.ChunkingConfig) ChunkOptions {
	return ChunkOptions{Size: cfg.Size, Overlap: cfg.Overlap, MinLength: cfg.MinLength}
}

func ProcessorOptionsFromConfig(storage config.StorageConfig, extraction config.ExtractionConfig) ProcessorOptions {
	return ProcessorOptions{
		MaxFileSize:       storage.MaxFileSize,
		ExtractionTimeout: extraction.Timeout,
		MaxPages:          extraction.MaxPages,
		MaxTextSize:       extraction.MaxTextSize,
	}
}

func EvaluatorOptionsFromConfig(cfg config.EvaluationConfig) EvaluatorOptions {
	return EvaluatorOptions{
		Timeout:            cfg.Timeout,
		MaxRetries:         cfg.MaxRetries,
		ContextLimit:       cfg.ContextLimit,
		MaxTokens:          cfg.MaxTokens,
		Temperature:        cfg.Temperature,
		SummaryTemperature: cfg.SummaryTemperature,
	}
}

func WorkerOptionsFromConfig(cfg config.WorkerConfig) WorkerOptions {
	return WorkerOptions{
		Concurrency:  cfg.Concurrency,
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		MaxDelay:     cfg.RetryMaxDelay,
		PollInterval: cfg.PollInterval,
		StaleAfter:   cfg.StaleAfter,
	}
}
