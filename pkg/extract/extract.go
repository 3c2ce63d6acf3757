package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/KyrieTangSheng/file-seek/pkg/ocr"
)

// ErrUnsupportedFormat is returned for files no extraction strategy covers.
var ErrUnsupportedFormat = errors.New("unsupported format")

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".bmp":  true,
	".webp": true,
}

// OCRProcessor is the slice of pkg/ocr the extractor needs; it is nil when
// OCR is disabled in configuration.
type OCRProcessor interface {
	ProcessFile(ctx context.Context, path string) (string, error)
}

// DocumentExtractor dispatches a file to the right extraction strategy:
// OCR for images and PDFs, HTML content extraction, or a plain read.
type DocumentExtractor struct {
	ocr OCRProcessor
}

func New(ocrProcessor *ocr.Processor) *DocumentExtractor {
	if ocrProcessor == nil {
		return &DocumentExtractor{}
	}
	return &DocumentExtractor{ocr: ocrProcessor}
}

// Extract returns the searchable text for a file. An empty string with a nil
// error is a legitimately empty document; failures to extract are errors.
func (e *DocumentExtractor) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case ext == ".pdf" || imageExtensions[ext]:
		if e.ocr == nil {
			return "", fmt.Errorf("%w: %s requires OCR, which is disabled", ErrUnsupportedFormat, ext)
		}
		return e.ocr.ProcessFile(ctx, path)

	case ext == ".html" || ext == ".htm":
		return extractHTML(path)

	case ext == ".txt" || ext == ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), nil

	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	return extractMainContent(doc), nil
}

func extractMainContent(doc *goquery.Document) string {
	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}

func cleanContent(content string) string {
	// Collapse whitespace runs
	content = strings.Join(strings.Fields(content), " ")
	return strings.TrimSpace(content)
}
