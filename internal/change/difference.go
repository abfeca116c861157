package change

import (
	"fmt"

	"github.com/ironsheep/change-detect-mcp/internal/raster"
)

// Epsilon keeps the normalized difference finite where the before value is 0.
const Epsilon = 1e-8

// DefaultMinValidPixels is the valid-pixel floor used when a Differ's
// MinValidPixels is negative. The zero value applies no floor.
const DefaultMinValidPixels = 100

// Difference is the combined spectral difference surface. Values are exactly
// 0 outside the valid mask it was computed with.
type Difference struct {
	Values raster.Grid

	// Bands is the number of bands that were averaged.
	Bands int
}

// Differ computes spectral differences between a before and an after image.
type Differ struct {
	// MinValidPixels is the number of pixels that must be valid in both
	// images for differencing to proceed. Zero means no floor; negative
	// values mean DefaultMinValidPixels.
	MinValidPixels int
}

// Difference returns the combined per-band normalized difference between
// img1 and img2 and the mask of pixels valid in both, that is
// NOT(invalid1 OR invalid2).
//
// When the valid count is below the floor the valid mask is returned
// together with an error wrapping ErrInsufficientData and a nil Difference.
func (d Differ) Difference(img1, img2 *raster.Image, invalid1, invalid2 raster.Mask) (*Difference, raster.Mask, error) {
	if err := raster.CheckSameGrid(img1, img2); err != nil {
		return nil, raster.Mask{}, err
	}
	rows, cols := img1.Rows(), img1.Cols()
	for i, m := range []raster.Mask{invalid1, invalid2} {
		if m.Rows != rows || m.Cols != cols {
			return nil, raster.Mask{}, fmt.Errorf("%w: mask %d is %dx%d, images are %dx%d",
				ErrDimensionMismatch, i+1, m.Rows, m.Cols, rows, cols)
		}
	}

	invalid, err := invalid1.Or(invalid2)
	if err != nil {
		return nil, raster.Mask{}, err
	}
	valid := invalid.Not()

	floor := d.MinValidPixels
	if floor < 0 {
		floor = DefaultMinValidPixels
	}
	if n := valid.Count(); n < floor {
		return nil, valid, fmt.Errorf("%w: %d valid, need %d", ErrInsufficientData, n, floor)
	}

	bands := min(img1.BandCount(), img2.BandCount())
	out := raster.NewGrid(rows, cols)
	for b := 0; b < bands; b++ {
		before, after := img1.Bands[b].Data, img2.Bands[b].Data
		for i := range out.Data {
			out.Data[i] += (after[i] - before[i]) / (before[i] + Epsilon)
		}
	}
	for i := range out.Data {
		if !valid.Data[i] {
			out.Data[i] = 0
			continue
		}
		out.Data[i] /= float64(bands)
	}

	return &Difference{Values: out, Bands: bands}, valid, nil
}
