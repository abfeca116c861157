package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/anthonynsimon/bild/blend"

	"github.com/ironsheep/change-detect-mcp/internal/raster"
)

// TrueColor builds an 8-bit composite from three bands of a unit-normalized
// image. Values outside [0, 1] are clamped.
func TrueColor(img *raster.Image, red, green, blue int) (*image.NRGBA, error) {
	n := img.BandCount()
	for _, b := range []int{red, green, blue} {
		if b < 0 || b >= n {
			return nil, fmt.Errorf("band %d out of range for %d-band image", b, n)
		}
	}
	rows, cols := img.Rows(), img.Cols()
	out := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.SetNRGBA(c, r, color.NRGBA{
				R: to8(img.Bands[red].At(r, c)),
				G: to8(img.Bands[green].At(r, c)),
				B: to8(img.Bands[blue].At(r, c)),
				A: 255,
			})
		}
	}
	return out, nil
}

func to8(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// MaskImage renders mask as opaque white on black.
func MaskImage(mask raster.Mask) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, mask.Cols, mask.Rows))
	for i, v := range mask.Data {
		if v {
			out.Pix[(i/mask.Cols)*out.Stride+i%mask.Cols] = 255
		}
	}
	return out
}

// Overlay tints the pixels of base flagged in mask with the colour hexColor
// at the given opacity (0 to 1). Unflagged pixels are left unchanged.
func Overlay(base image.Image, mask raster.Mask, hexColor string, opacity float64) (*image.RGBA, error) {
	b := base.Bounds()
	if b.Dx() != mask.Cols || b.Dy() != mask.Rows {
		return nil, fmt.Errorf("mask is %dx%d, image is %dx%d", mask.Cols, mask.Rows, b.Dx(), b.Dy())
	}
	if opacity < 0 || opacity > 1 {
		return nil, fmt.Errorf("opacity must be between 0 and 1, got %f", opacity)
	}
	tint, err := parseHexColor(hexColor)
	if err != nil {
		return nil, fmt.Errorf("invalid overlay colour %q: %w", hexColor, err)
	}
	tint.A = 255

	fg := image.NewRGBA(b)
	draw.Draw(fg, b, base, b.Min, draw.Src)
	for r := 0; r < mask.Rows; r++ {
		for c := 0; c < mask.Cols; c++ {
			if mask.At(r, c) {
				fg.SetRGBA(b.Min.X+c, b.Min.Y+r, tint)
			}
		}
	}
	return blend.Opacity(base, fg, opacity), nil
}
