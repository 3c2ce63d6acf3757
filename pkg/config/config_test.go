package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
database:
  url: "postgres://localhost:5432/test"
  table_name: "test_docs"
  vector_dim: 768
  batch_size: 50

embedder:
  base_url: "http://localhost:11434"
  model: "nomic-embed-text:latest"

ocr:
  enabled: true
  languages:
    - eng
    - deu
  confidence_threshold: 70
  preprocess: true
  max_workers: 2
  dpi: 150

processing:
  chunk_size: 500
  chunk_overlap: 100
  excluded_patterns:
    - "*.tmp"
    - ".git"

watch:
  rate_limit: 1.5

ui:
  theme: "dark"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "postgres://localhost:5432/test", config.Database.URL)
	assert.Equal(t, "test_docs", config.Database.TableName)
	assert.Equal(t, 768, config.Database.VectorDim)
	assert.Equal(t, "http://localhost:11434", config.Embedder.BaseURL)
	assert.Equal(t, []string{"eng", "deu"}, config.OCR.Languages)
	assert.Equal(t, 70.0, config.OCR.ConfidenceThreshold)
	assert.Equal(t, 2, config.OCR.MaxWorkers)
	assert.Equal(t, 500, config.Processing.ChunkSize)
	assert.Equal(t, []string{"*.tmp", ".git"}, config.Processing.ExcludedPatterns)
	assert.Equal(t, 1.5, config.Watch.RateLimit)
	assert.Equal(t, "dark", config.UI.Theme)
}

func TestLoadConfigDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Minimal file: everything unset falls back to defaults
	err := os.WriteFile(configPath, []byte("ui:\n  theme: default\n"), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "documents", config.Database.TableName)
	assert.Equal(t, 768, config.Database.VectorDim)
	assert.Equal(t, []string{"eng"}, config.OCR.Languages)
	assert.Equal(t, 60.0, config.OCR.ConfidenceThreshold)
	assert.Equal(t, 4, config.OCR.MaxWorkers)
	assert.Equal(t, 300, config.OCR.DPI)
	assert.True(t, config.OCR.Enabled)
	assert.True(t, config.OCR.Preprocess)
	assert.Contains(t, config.Processing.AllowedExtensions, ".pdf")
	assert.Contains(t, config.Processing.AllowedExtensions, ".png")
}

func TestConfigValidation(t *testing.T) {
	valid, err := getDefaultConfig()
	require.NoError(t, err)

	t.Run("valid config", func(t *testing.T) {
		errors := valid.Validate()
		assert.Empty(t, errors)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg, err := getDefaultConfig()
		require.NoError(t, err)
		cfg.Embedder.BaseURL = ""
		cfg.OCR.ConfidenceThreshold = 150 // Invalid
		cfg.OCR.MaxWorkers = 0            // Invalid
		cfg.Database.VectorDim = -1       // Invalid
		cfg.Processing.ChunkOverlap = cfg.Processing.ChunkSize // Invalid

		errors := cfg.Validate()
		assert.Len(t, errors, 5)

		messages := make([]string, 0, len(errors))
		for _, e := range errors {
			messages = append(messages, e.Error())
		}
		assert.Contains(t, messages, "database.vector_dim: vector_dim must be positive")
		assert.Contains(t, messages, "embedder.base_url: Ollama base URL is required")
		assert.Contains(t, messages, "ocr.confidence_threshold: confidence_threshold must be between 0 and 100")
		assert.Contains(t, messages, "ocr.max_workers: max_workers must be positive")
		assert.Contains(t, messages, "processing.chunk_overlap: chunk_overlap must be non-negative and less than chunk_size")
	})

	t.Run("bad extension format", func(t *testing.T) {
		cfg, err := getDefaultConfig()
		require.NoError(t, err)
		cfg.Processing.AllowedExtensions = []string{"pdf"}

		errors := cfg.Validate()
		require.Len(t, errors, 1)
		assert.Contains(t, errors[0].Error(), "invalid extension format: pdf")
	})
}

func TestEnvironmentOverrides(t *testing.T) {
	// Set environment variables
	os.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	os.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	os.Setenv("TESSERACT_PATH", "/opt/tesseract/bin/tesseract")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("OLLAMA_BASE_URL")
		os.Unsetenv("TESSERACT_PATH")
	}()

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, "http://env-ollama:11434", config.Embedder.BaseURL)
	assert.Equal(t, "/opt/tesseract/bin/tesseract", config.OCR.TesseractPath)
}
