package ocr

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkerboard(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 30, G: 30, B: 30, A: 255}
			if (x+y)%2 == 0 {
				c = color.RGBA{R: 200, G: 180, B: 170, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocessPreservesDimensions(t *testing.T) {
	src := checkerboard(64, 48)

	out := Preprocess(src)

	assert.Equal(t, src.Bounds(), out.Bounds())
}

func TestPreprocessProducesGrayscale(t *testing.T) {
	out := Preprocess(checkerboard(32, 32))

	_, ok := out.(*image.Gray)
	assert.True(t, ok)
}

func TestPreprocessIsDeterministic(t *testing.T) {
	a := Preprocess(checkerboard(40, 40)).(*image.Gray)
	b := Preprocess(checkerboard(40, 40)).(*image.Gray)

	require.Equal(t, a.Bounds(), b.Bounds())
	assert.Equal(t, a.Pix, b.Pix)
}

func TestPreprocessHandlesTinyImages(t *testing.T) {
	// Smaller than the tile grid; must not panic or change dimensions.
	src := checkerboard(3, 3)

	out := Preprocess(src)

	assert.Equal(t, src.Bounds(), out.Bounds())
}

func TestToGrayPassthrough(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 10, 10))
	assert.Same(t, src, toGray(src))
}
