package ocr

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/otiai10/gosseract/v2"
)

// Word is a single recognized token with its confidence in [0,100] and its
// bounding box in pixel coordinates, origin in the upper-left corner.
type Word struct {
	Text       string
	Confidence float64
	Left       int
	Top        int
	Width      int
	Height     int
}

// Engine is the OCR provider contract: one encoded image in, recognized
// words out in detection order.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, languages []string) ([]Word, error)
}

// TesseractEngine implements Engine using the gosseract client.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
}

func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{clientFactory: gosseract.NewClient}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image and returns per-word text,
// confidence and bounding boxes.
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte, languages []string) ([]Word, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if len(languages) > 0 {
		if err := c.SetLanguage(languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, Word{
			Text:       b.Word,
			Confidence: b.Confidence,
			Left:       b.Box.Min.X,
			Top:        b.Box.Min.Y,
			Width:      b.Box.Dx(),
			Height:     b.Box.Dy(),
		})
	}
	return words, nil
}

// CheckInstallation reports whether the Tesseract engine is usable and, if
// not, returns installation instructions for the current operating system.
func CheckInstallation(tesseractPath string) (bool, string) {
	binary := tesseractPath
	if binary == "" {
		binary = "tesseract"
	}
	if _, err := exec.LookPath(binary); err == nil {
		return true, "Tesseract is installed"
	}

	var instructions string
	switch runtime.GOOS {
	case "linux":
		instructions = "To install Tesseract OCR on Linux:\n" +
			"sudo apt-get update && sudo apt-get install -y tesseract-ocr tesseract-ocr-eng libtesseract-dev"
	case "darwin":
		instructions = "To install Tesseract OCR on macOS:\n" +
			"brew install tesseract"
	case "windows":
		instructions = "To install Tesseract OCR on Windows:\n" +
			"1. Download installer from: https://github.com/UB-Mannheim/tesseract/wiki\n" +
			"2. Run the installer\n" +
			"3. Add Tesseract to system PATH"
	default:
		instructions = "Please install Tesseract OCR for your operating system"
	}

	return false, instructions
}
