package detector

import (
	"path/filepath"
	"strings"
)

type DetectorConfig struct {
	AllowedExtensions []string // lowercase, with leading dot
	ExcludedPatterns  []string // glob on base name, or substring of the path
	SkipHidden        bool
}

// Detector decides whether a path is eligible for processing.
type Detector struct {
	config     DetectorConfig
	extensions map[string]bool
}

func NewWithConfig(config DetectorConfig) *Detector {
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{
			".pdf", ".png", ".jpg", ".jpeg", ".tiff", ".bmp", ".webp",
			".txt", ".md", ".html", ".htm",
		}
	}

	extensions := make(map[string]bool, len(config.AllowedExtensions))
	for _, ext := range config.AllowedExtensions {
		extensions[strings.ToLower(ext)] = true
	}

	return &Detector{config: config, extensions: extensions}
}

// ShouldProcess reports whether the file at path is a processing candidate.
// Directories are not the detector's concern; callers filter those first.
func (d *Detector) ShouldProcess(path string) bool {
	base := filepath.Base(path)

	if d.config.SkipHidden && strings.HasPrefix(base, ".") {
		return false
	}

	if !d.extensions[strings.ToLower(filepath.Ext(path))] {
		return false
	}

	for _, pattern := range d.config.ExcludedPatterns {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return false
		}
		if strings.Contains(path, pattern) {
			return false
		}
	}

	return true
}
