package raster

import "math"

// Resample returns a copy of img bilinearly resampled onto a rows x cols grid
// covering the same extent.
//
// Sample positions use pixel centres, so a grid resampled to its own size is
// returned with identical values.
func Resample(img *Image, rows, cols int) *Image {
	srcRows, srcCols := img.Rows(), img.Cols()
	scaleY := float64(srcRows) / float64(rows)
	scaleX := float64(srcCols) / float64(cols)

	bands := make([]Grid, len(img.Bands))
	for i, src := range img.Bands {
		dst := NewGrid(rows, cols)
		for r := 0; r < rows; r++ {
			sy := (float64(r)+0.5)*scaleY - 0.5
			y0, y1, wy := neighbours(sy, srcRows)
			for c := 0; c < cols; c++ {
				sx := (float64(c)+0.5)*scaleX - 0.5
				x0, x1, wx := neighbours(sx, srcCols)
				top := src.At(y0, x0)*(1-wx) + src.At(y0, x1)*wx
				bottom := src.At(y1, x0)*(1-wx) + src.At(y1, x1)*wx
				dst.Set(r, c, top*(1-wy)+bottom*wy)
			}
		}
		bands[i] = dst
	}

	gt := img.Transform
	gt[1] *= scaleX
	gt[2] *= scaleY
	gt[4] *= scaleX
	gt[5] *= scaleY

	return &Image{Bands: bands, CRS: img.CRS, Transform: gt, NoData: img.NoData}
}

// neighbours returns the two source indices bracketing position s and the
// weight of the second, with edge pixels replicated.
func neighbours(s float64, n int) (int, int, float64) {
	if s <= 0 {
		return 0, 0, 0
	}
	if s >= float64(n-1) {
		return n - 1, n - 1, 0
	}
	lo := int(math.Floor(s))
	return lo, lo + 1, s - float64(lo)
}
