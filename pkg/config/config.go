package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	Embedder struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"embedder"`

	OCR struct {
		Enabled             bool     `yaml:"enabled"`
		Languages           []string `yaml:"languages"`
		ConfidenceThreshold float64  `yaml:"confidence_threshold"`
		Preprocess          bool     `yaml:"preprocess"`
		MaxWorkers          int      `yaml:"max_workers"`
		DPI                 int      `yaml:"dpi"`
		MaxPages            int      `yaml:"max_pages"`
		TesseractPath       string   `yaml:"tesseract_path"`
		PdftoppmPath        string   `yaml:"pdftoppm_path"`
		PdftotextPath       string   `yaml:"pdftotext_path"`
	} `yaml:"ocr"`

	Processing struct {
		ChunkSize         int      `yaml:"chunk_size"`
		ChunkOverlap      int      `yaml:"chunk_overlap"`
		AllowedExtensions []string `yaml:"allowed_extensions"`
		ExcludedPatterns  []string `yaml:"excluded_patterns"`
	} `yaml:"processing"`

	Watch struct {
		RateLimit float64 `yaml:"rate_limit"`
	} `yaml:"watch"`

	UI struct {
		Theme string `yaml:"theme"`
	} `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/fileseek/config.yaml"),
			"/etc/fileseek/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	config := &Config{}
	config.OCR.Enabled = true
	config.OCR.Preprocess = true
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(config)

	// Apply defaults for unset values
	applyDefaults(config)

	return config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	config.OCR.Enabled = true
	config.OCR.Preprocess = true
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Database.TableName == "" {
		config.Database.TableName = "documents"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}
	if config.Embedder.Model == "" {
		config.Embedder.Model = "nomic-embed-text:latest"
	}

	if len(config.OCR.Languages) == 0 {
		config.OCR.Languages = []string{"eng"}
	}
	if config.OCR.ConfidenceThreshold == 0 {
		config.OCR.ConfidenceThreshold = 60.0
	}
	if config.OCR.MaxWorkers == 0 {
		config.OCR.MaxWorkers = 4
	}
	if config.OCR.DPI == 0 {
		config.OCR.DPI = 300
	}

	if config.Processing.ChunkSize == 0 {
		config.Processing.ChunkSize = 1000
	}
	if config.Processing.ChunkOverlap == 0 {
		config.Processing.ChunkOverlap = 200
	}
	if len(config.Processing.AllowedExtensions) == 0 {
		config.Processing.AllowedExtensions = []string{
			".pdf", ".png", ".jpg", ".jpeg", ".tiff", ".bmp", ".webp",
			".txt", ".md", ".html", ".htm",
		}
	}

	if config.Watch.RateLimit == 0 {
		config.Watch.RateLimit = 2.0
	}

	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}
}

func mergeWithEnv(config *Config) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedder.BaseURL = baseURL
	}
	if tess := os.Getenv("TESSERACT_PATH"); tess != "" {
		config.OCR.TesseractPath = tess
	}
}
