package raster

import (
	"fmt"
	"strings"
)

// CanonicalCRS is the coordinate reference system every loaded image is
// expressed in.
const CanonicalCRS = "EPSG:4326"

// GeoTransform is an affine pixel-to-world transform in GDAL order.
type GeoTransform [6]float64

// IdentityTransform maps (col, row) to (x, y) = (col, -row) with a unit
// pixel size, which keeps north up for synthetic images.
var IdentityTransform = GeoTransform{0, 1, 0, 0, 0, -1}

// Apply returns the world coordinates of the pixel position (col, row).
// Positions are continuous; the centre of pixel (c, r) is (c+0.5, r+0.5).
func (gt GeoTransform) Apply(col, row float64) (x, y float64) {
	x = gt[0] + col*gt[1] + row*gt[2]
	y = gt[3] + col*gt[4] + row*gt[5]
	return x, y
}

// Invert returns the pixel position of world coordinates (x, y).
func (gt GeoTransform) Invert(x, y float64) (col, row float64, err error) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return 0, 0, fmt.Errorf("%w: degenerate geotransform %v", ErrPreprocessing, gt)
	}
	dx := x - gt[0]
	dy := y - gt[3]
	col = (dx*gt[5] - dy*gt[2]) / det
	row = (dy*gt[1] - dx*gt[4]) / det
	return col, row, nil
}

// Shift returns the transform for a window whose top-left pixel is (col, row).
func (gt GeoTransform) Shift(col, row int) GeoTransform {
	x, y := gt.Apply(float64(col), float64(row))
	out := gt
	out[0] = x
	out[3] = y
	return out
}

// Image is a georeferenced multi-band raster.
//
// All bands share identical dimensions. An Image is treated as immutable once
// constructed; stages that need different values build a new Image.
type Image struct {
	Bands     []Grid       `json:"-"`
	CRS       string       `json:"crs"`
	Transform GeoTransform `json:"transform"`
	NoData    float64      `json:"nodata"`
}

// NewImage assembles an image from bands, rejecting empty input and bands of
// differing shape.
func NewImage(bands []Grid, crs string, gt GeoTransform, nodata float64) (*Image, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w: raster has no bands", ErrPreprocessing)
	}
	for i, b := range bands[1:] {
		if !b.SameShape(bands[0]) {
			return nil, fmt.Errorf("%w: band %d is %dx%d, band 1 is %dx%d",
				ErrDimensionMismatch, i+2, b.Rows, b.Cols, bands[0].Rows, bands[0].Cols)
		}
		if len(b.Data) != b.Len() {
			return nil, fmt.Errorf("%w: band %d holds %d values for %dx%d", ErrPreprocessing, i+2, len(b.Data), b.Rows, b.Cols)
		}
	}
	if len(bands[0].Data) != bands[0].Len() {
		return nil, fmt.Errorf("%w: band 1 holds %d values for %dx%d", ErrPreprocessing, len(bands[0].Data), bands[0].Rows, bands[0].Cols)
	}
	return &Image{Bands: bands, CRS: crs, Transform: gt, NoData: nodata}, nil
}

// Rows returns the image height in pixels.
func (img *Image) Rows() int { return img.Bands[0].Rows }

// Cols returns the image width in pixels.
func (img *Image) Cols() int { return img.Bands[0].Cols }

// BandCount returns the number of bands.
func (img *Image) BandCount() int { return len(img.Bands) }

// SameGrid reports whether two images share pixel dimensions.
func (img *Image) SameGrid(o *Image) bool {
	return img.Rows() == o.Rows() && img.Cols() == o.Cols()
}

// CheckSameGrid returns ErrDimensionMismatch when the images differ in shape.
func CheckSameGrid(a, b *Image) error {
	if a.SameGrid(b) {
		return nil
	}
	return fmt.Errorf("%w: before is %dx%d, after is %dx%d",
		ErrDimensionMismatch, a.Rows(), a.Cols(), b.Rows(), b.Cols())
}

// IsCanonicalCRS reports whether crs names geographic WGS84.
func IsCanonicalCRS(crs string) bool {
	switch strings.ToUpper(strings.TrimSpace(crs)) {
	case CanonicalCRS, "OGC:CRS84", "WGS84":
		return true
	}
	return false
}

// Normalize scales every band into [0, 1] by the maximum value observed
// across all bands, when that maximum exceeds 1. The image is modified in
// place and returned.
func Normalize(img *Image) *Image {
	maxValue := 0.0
	for _, b := range img.Bands {
		if m := b.Max(); m > maxValue {
			maxValue = m
		}
	}
	if maxValue <= 1.0 {
		return img
	}
	for _, b := range img.Bands {
		for i := range b.Data {
			b.Data[i] /= maxValue
		}
	}
	return img
}
