package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Database config
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Embedder config
	if c.Embedder.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "embedder.base_url",
			Message: "Ollama base URL is required",
		})
	} else if _, err := url.Parse(c.Embedder.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "embedder.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	// Validate OCR config
	if c.OCR.ConfidenceThreshold < 0 || c.OCR.ConfidenceThreshold > 100 {
		errors = append(errors, ValidationError{
			Field:   "ocr.confidence_threshold",
			Message: "confidence_threshold must be between 0 and 100",
		})
	}

	if c.OCR.MaxWorkers < 1 {
		errors = append(errors, ValidationError{
			Field:   "ocr.max_workers",
			Message: "max_workers must be positive",
		})
	}

	if c.OCR.DPI < 72 {
		errors = append(errors, ValidationError{
			Field:   "ocr.dpi",
			Message: "dpi must be at least 72",
		})
	}

	if c.OCR.MaxPages < 0 {
		errors = append(errors, ValidationError{
			Field:   "ocr.max_pages",
			Message: "max_pages cannot be negative",
		})
	}

	// Validate extensions format
	for _, ext := range c.Processing.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			errors = append(errors, ValidationError{
				Field:   "processing.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Validate Processing config
	if c.Processing.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processing.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processing.ChunkOverlap < 0 || c.Processing.ChunkOverlap >= c.Processing.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processing.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate Watch config
	if c.Watch.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "watch.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	return errors
}
