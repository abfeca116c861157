package raster

import (
	"fmt"
	"math"
)

// Extent returns the world-coordinate bounding box of the image.
func (img *Image) Extent() Bounds {
	rows, cols := float64(img.Rows()), float64(img.Cols())
	b := Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, c := range [][2]float64{{0, 0}, {cols, 0}, {0, rows}, {cols, rows}} {
		x, y := img.Transform.Apply(c[0], c[1])
		b.MinX = math.Min(b.MinX, x)
		b.MinY = math.Min(b.MinY, y)
		b.MaxX = math.Max(b.MaxX, x)
		b.MaxY = math.Max(b.MaxY, y)
	}
	return b
}

// Crop windows img to the bounding box of aoi and sets every pixel whose
// centre lies outside the polygon to zero.
//
// A nil aoi returns img unchanged. An aoi that contains no pixel centre of
// the raster is an error rather than an empty image.
func Crop(img *Image, aoi *Polygon) (*Image, error) {
	if aoi == nil {
		return img, nil
	}

	pb := aoi.Bounds()
	if !pb.Intersects(img.Extent()) {
		return nil, fmt.Errorf("%w: area of interest does not intersect raster", ErrPreprocessing)
	}

	// Pixel window covering the polygon's bounding box.
	minCol, minRow := math.Inf(1), math.Inf(1)
	maxCol, maxRow := math.Inf(-1), math.Inf(-1)
	for _, c := range [][2]float64{{pb.MinX, pb.MinY}, {pb.MaxX, pb.MinY}, {pb.MinX, pb.MaxY}, {pb.MaxX, pb.MaxY}} {
		col, row, err := img.Transform.Invert(c[0], c[1])
		if err != nil {
			return nil, err
		}
		minCol, maxCol = math.Min(minCol, col), math.Max(maxCol, col)
		minRow, maxRow = math.Min(minRow, row), math.Max(maxRow, row)
	}
	c0 := clamp(int(math.Floor(minCol)), 0, img.Cols())
	c1 := clamp(int(math.Ceil(maxCol)), 0, img.Cols())
	r0 := clamp(int(math.Floor(minRow)), 0, img.Rows())
	r1 := clamp(int(math.Ceil(maxRow)), 0, img.Rows())
	if c0 >= c1 || r0 >= r1 {
		return nil, fmt.Errorf("%w: area of interest does not intersect raster", ErrPreprocessing)
	}

	rows, cols := r1-r0, c1-c0
	inside := NewMask(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x, y := img.Transform.Apply(float64(c0+c)+0.5, float64(r0+r)+0.5)
			inside.Set(r, c, aoi.Contains(x, y))
		}
	}
	if inside.Count() == 0 {
		return nil, fmt.Errorf("%w: area of interest does not intersect raster", ErrPreprocessing)
	}

	bands := make([]Grid, len(img.Bands))
	for i, src := range img.Bands {
		dst := NewGrid(rows, cols)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				if inside.At(r, c) {
					dst.Set(r, c, src.At(r0+r, c0+c))
				}
			}
		}
		bands[i] = dst
	}

	return NewImage(bands, img.CRS, img.Transform.Shift(c0, r0), 0)
}

// clamp constrains an integer value to the range [lo, hi].
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
