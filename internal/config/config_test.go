package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("CHUNK_SIZE", "")

	cfg := Load()

	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 1536, cfg.LLM.EmbeddingDimension)
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 300*time.Second, cfg.Evaluation.Timeout)
	assert.InDelta(t, 0.3, cfg.Evaluation.Temperature, 1e-6)
	assert.Equal(t, int64(10485760), cfg.Storage.MaxFileSize)

	require.NoError(t, cfg.Validate())
}

func TestLoad_GeminiDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("EMBEDDING_DIMENSION", "")

	cfg := Load()

	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-key", cfg.LLM.APIKey)
	assert.Empty(t, cfg.LLM.BaseURL)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 768, cfg.LLM.EmbeddingDimension)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "many")
	t.Setenv("RETRY_INITIAL_DELAY", "soon")

	cfg := Load()

	assert.Equal(t, 3, cfg.Worker.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Worker.RetryInitialDelay)
}

func TestValidate(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-test")

	cases := map[string]func(c *Config){
		"unknown driver":         func(c *Config) { c.Database.Driver = "mysql" },
		"unknown provider":       func(c *Config) { c.LLM.Provider = "acme" },
		"missing api key":        func(c *Config) { c.LLM.APIKey = "" },
		"bad base url":           func(c *Config) { c.LLM.BaseURL = "localhost" },
		"zero dimension":         func(c *Config) { c.LLM.EmbeddingDimension = 0 },
		"unknown vector backend": func(c *Config) { c.VectorStore.Backend = "faiss" },
		"unknown queue backend":  func(c *Config) { c.Worker.Backend = "kafka" },
		"overlap too large":      func(c *Config) { c.Chunking.Overlap = c.Chunking.Size },
		"negative overlap":       func(c *Config) { c.Chunking.Overlap = -1 },
		"zero file size":         func(c *Config) { c.Storage.MaxFileSize = 0 },
		"zero timeout":           func(c *Config) { c.Evaluation.Timeout = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Load()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Driver: DriverPostgres, Host: "db", Port: "5432", User: "u", Password: "p", DBName: "cv",
	}}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=cv sslmode=disable", cfg.GetDatabaseDSN())

	cfg.Database.Driver = DriverSQLite
	cfg.Database.SQLitePath = "/data/cv.db"
	assert.Equal(t, "/data/cv.db", cfg.GetDatabaseDSN())
}
