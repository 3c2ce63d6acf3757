package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/KyrieTangSheng/file-seek/internal/models"

	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrExtractionFailed marks a document where both the primary OCR path and
// the text-layer fallback failed. Callers must distinguish this from a
// legitimately empty result, which is ("", nil).
var ErrExtractionFailed = errors.New("extraction failed")

// pageSeparator joins page texts in the concatenated document result.
const pageSeparator = "\n\f\n"

type ProcessorConfig struct {
	Languages           []string
	ConfidenceThreshold float64 // tokens must strictly exceed this, in [0,100]
	Preprocess          bool
	MaxWorkers          int // concurrent page extractions per document
	DPI                 int // rasterization DPI for PDFs
	MaxPages            int // 0 = no limit
	TesseractPath       string
	PdftoppmPath        string
	PdftotextPath       string
}

// Processor extracts text from images and PDFs via OCR, with a text-layer
// fallback for PDFs that are not pure scans.
type Processor struct {
	cfg    ProcessorConfig
	engine Engine
	runner Runner
	logger *slog.Logger
}

// NewProcessor verifies the OCR engine is reachable before any extraction
// work begins and fails fast with remediation guidance when it is not.
func NewProcessor(cfg ProcessorConfig, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.DPI == 0 {
		cfg.DPI = 300
	}
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.PdftotextPath == "" {
		cfg.PdftotextPath = "pdftotext"
	}

	if ok, instructions := CheckInstallation(cfg.TesseractPath); !ok {
		return nil, fmt.Errorf(
			"Tesseract OCR is required but not installed.\n\n%s\n\n"+
				"Alternatively, you can:\n"+
				"1. Disable OCR in config: set ocr.enabled to false\n"+
				"2. Use text-only mode for PDFs\n"+
				"3. Skip image processing",
			instructions)
	}

	p := &Processor{
		cfg:    cfg,
		engine: NewTesseractEngine(),
		runner: execRunner{},
		logger: logger,
	}
	logger.Info("ocr processor initialized", "languages", p.languageTag(), "workers", cfg.MaxWorkers)
	return p, nil
}

func (p *Processor) languageTag() string {
	return strings.Join(p.cfg.Languages, "+")
}

// ExtractImage runs OCR over one image file and aggregates the tokens that
// survive confidence filtering. Engine-level failures are converted to a nil
// result and logged: one failed page among many is an expected, retriable
// condition, not an error the caller should see.
func (p *Processor) ExtractImage(ctx context.Context, path string) *models.ExtractionResult {
	res, err := p.extractImage(ctx, path)
	if err != nil {
		p.logger.Warn("image extraction failed", "path", path, "error", err)
		return nil
	}
	return res
}

func (p *Processor) extractImage(ctx context.Context, path string) (*models.ExtractionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	if p.cfg.Preprocess {
		if prepped, err := preprocessBytes(data); err != nil {
			// Preprocessing is best effort: fall through with the raw image.
			p.logger.Warn("image preprocessing failed", "path", path, "error", err)
		} else {
			data = prepped
		}
	}

	words, err := p.engine.Recognize(ctx, data, p.cfg.Languages)
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	return p.aggregate(words), nil
}

// aggregate keeps tokens whose confidence strictly exceeds the threshold,
// joins their text in detection order and averages confidence over the
// retained set only. An empty retained set is a valid result with
// confidence 0.0, not an error.
func (p *Processor) aggregate(words []Word) *models.ExtractionResult {
	var parts []string
	var boxes []models.BoundingBox
	var sum float64

	for _, w := range words {
		if w.Confidence <= p.cfg.ConfidenceThreshold {
			continue
		}
		parts = append(parts, w.Text)
		sum += w.Confidence
		boxes = append(boxes, models.BoundingBox{
			Text:       w.Text,
			Confidence: w.Confidence,
			Left:       w.Left,
			Top:        w.Top,
			Width:      w.Width,
			Height:     w.Height,
		})
	}

	confidence := 0.0
	if len(parts) > 0 {
		confidence = sum / float64(len(parts))
	}

	return &models.ExtractionResult{
		Text:       strings.Join(parts, " "),
		Confidence: confidence,
		Language:   p.languageTag(),
		Boxes:      boxes,
	}
}

// ExtractPDF rasterizes every page and extracts them in parallel with a
// bounded worker pool. Results are keyed by page number, so the concatenated
// text is in document page order regardless of worker completion order.
// Pages whose extraction failed are skipped; a document with zero
// successfully extracted pages yields an empty result, not an error.
func (p *Processor) ExtractPDF(ctx context.Context, path string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "fileseek-pages-*")
	if err != nil {
		return "", fmt.Errorf("create page dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			p.logger.Warn("failed to remove page dir", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
	_, errb, err := p.runner.Run(ctx, p.cfg.PdftoppmPath, "-r", fmt.Sprintf("%d", p.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", fmt.Errorf("rasterize pdf: %w: %s", err, truncate(string(errb), 512))
	}

	// pdftoppm zero-pads page numbers, so lexical order is page order.
	pages, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(pages)
	if p.cfg.MaxPages > 0 && len(pages) > p.cfg.MaxPages {
		pages = pages[:p.cfg.MaxPages]
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("rasterize pdf: no pages rendered")
	}

	results := make([]*models.ExtractionResult, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxWorkers)
	for i, img := range pages {
		i, img := i, img
		g.Go(func() error {
			if res := p.ExtractImage(gctx, img); res != nil {
				res.PageNumber = i
				results[i] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var texts []string
	for _, res := range results {
		if res == nil {
			continue
		}
		texts = append(texts, res.Text)
	}
	return strings.Join(texts, pageSeparator), nil
}

// ProcessFile extracts text from an image or PDF file. For PDFs, a failure
// of the primary OCR path falls back to the embedded text layer; when both
// fail the document surfaces ErrExtractionFailed rather than silently
// producing an empty result.
func (p *Processor) ProcessFile(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		res, err := p.extractImage(ctx, path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		return res.Text, nil
	}

	text, err := p.ExtractPDF(ctx, path)
	if err == nil {
		return text, nil
	}
	p.logger.Warn("pdf ocr failed, attempting text-layer fallback", "path", path, "error", err)

	text, fallbackErr := p.pdfToText(ctx, path)
	if fallbackErr != nil {
		p.logger.Error("fallback pdf extraction failed", "path", path, "error", fallbackErr)
		return "", fmt.Errorf("%w: ocr: %v, text layer: %v", ErrExtractionFailed, err, fallbackErr)
	}
	return text, nil
}

// pdfToText extracts the PDF's embedded text layer, for PDFs that are not
// pure scans.
func (p *Processor) pdfToText(ctx context.Context, path string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.runner.Run(ctx, p.cfg.PdftotextPath, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}

// preprocessBytes decodes, preprocesses and re-encodes an image payload.
func preprocessBytes(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, Preprocess(img)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}
