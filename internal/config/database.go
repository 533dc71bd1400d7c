package config

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"alfredoptarigan/cv-screening/internal/models"
)

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(cfg.GetDatabaseDSN())
	default:
		dialector = postgres.Open(cfg.GetDatabaseDSN())
	}

	logLevel := logger.Silent
	if cfg.IsDevelopment() {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logrus.WithField("driver", cfg.Database.Driver).Info("✅ Database connected successfully")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logrus.Info("✅ Database migration completed")

	return db, nil
}

// Migrate creates or updates the schema. On postgres the pgvector extension
// must be available because embeddings are stored in a vector column.
func Migrate(db *gorm.DB) error {
	if db.Dialector.Name() == DriverPostgres {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("failed to enable pgvector extension: %w", err)
		}
	}

	if err := db.AutoMigrate(
		&models.Document{},
		&models.VectorEmbedding{},
		&models.EvaluationJob{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
