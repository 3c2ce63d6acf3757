package ocr

import (
	"image"
	"image/color"
	"sort"
)

const (
	claheClipLimit = 2.0
	claheTileGrid  = 8
)

// Preprocess normalizes an image for recognition: grayscale conversion,
// contrast-limited adaptive histogram equalization (clip limit 2.0, 8x8
// tiles) and a 3x3 median denoise. The output has the same dimensions as
// the input and the transform is deterministic.
func Preprocess(img image.Image) image.Image {
	gray := toGray(img)
	gray = clahe(gray, claheClipLimit, claheTileGrid, claheTileGrid)
	return medianDenoise(gray)
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}

// clahe applies contrast-limited adaptive histogram equalization. Per-tile
// histograms are clipped at clipLimit times the uniform bin height, the
// excess is redistributed evenly, and per-pixel values are bilinearly
// interpolated between the four nearest tile lookup tables.
func clahe(src *image.Gray, clipLimit float64, tilesX, tilesY int) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return src
	}
	if tilesX > w {
		tilesX = w
	}
	if tilesY > h {
		tilesY = h
	}

	tileW := (w + tilesX - 1) / tilesX
	tileH := (h + tilesY - 1) / tilesY

	// Build one equalization LUT per tile.
	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, w), min(y0+tileH, h)

			var hist [256]int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y]++
				}
			}

			total := (x1 - x0) * (y1 - y0)
			limit := int(clipLimit * float64(total) / 256.0)
			if limit < 1 {
				limit = 1
			}

			excess := 0
			for i := range hist {
				if hist[i] > limit {
					excess += hist[i] - limit
					hist[i] = limit
				}
			}
			// Redistribute clipped mass evenly across all bins.
			share := excess / 256
			rem := excess % 256
			for i := range hist {
				hist[i] += share
				if i < rem {
					hist[i]++
				}
			}

			cdf := 0
			for i := range hist {
				cdf += hist[i]
				luts[ty*tilesX+tx][i] = uint8(min(255, cdf*255/total))
			}
		}
	}

	// Bilinear interpolation between neighboring tile LUTs, weighted by the
	// pixel's distance to the tile centers.
	dst := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y

			fx := (float64(x) - float64(tileW)/2) / float64(tileW)
			fy := (float64(y) - float64(tileH)/2) / float64(tileH)
			tx0 := clampInt(int(fx), 0, tilesX-1)
			ty0 := clampInt(int(fy), 0, tilesY-1)
			if fx < 0 {
				fx = 0
			}
			if fy < 0 {
				fy = 0
			}
			tx1 := min(tx0+1, tilesX-1)
			ty1 := min(ty0+1, tilesY-1)
			wx := fx - float64(tx0)
			wy := fy - float64(ty0)
			if wx < 0 {
				wx = 0
			} else if wx > 1 {
				wx = 1
			}
			if wy < 0 {
				wy = 0
			} else if wy > 1 {
				wy = 1
			}

			v00 := float64(luts[ty0*tilesX+tx0][v])
			v01 := float64(luts[ty0*tilesX+tx1][v])
			v10 := float64(luts[ty1*tilesX+tx0][v])
			v11 := float64(luts[ty1*tilesX+tx1][v])
			top := v00*(1-wx) + v01*wx
			bot := v10*(1-wx) + v11*wx
			blended := top*(1-wy) + bot*wy
			dst.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: uint8(clampInt(int(blended+0.5), 0, 255))})
		}
	}
	return dst
}

// medianDenoise applies a 3x3 median filter with clamped edges.
func medianDenoise(src *image.Gray) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewGray(bounds)

	window := make([]byte, 0, 9)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx := clampInt(x+dx, 0, w-1)
					ny := clampInt(y+dy, 0, h-1)
					window = append(window, src.GrayAt(bounds.Min.X+nx, bounds.Min.Y+ny).Y)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			dst.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: window[4]})
		}
	}
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
