// Package masking flags cloud- and shadow-affected pixels in a raster.
//
// Clouds are bright or non-vegetated pixels; shadows are dark, non-vegetated
// pixels close to a cloud. Both masks are cleaned with a morphological
// closing. The rules are fixed thresholds over brightness (mean of the first
// three bands) and NDVI, with no randomness: the same image and options
// always produce the same masks.
package masking

import (
	"log/slog"

	"github.com/ironsheep/change-detect-mcp/internal/raster"
)

// Epsilon keeps NDVI finite where NIR + Red is zero.
const Epsilon = 1e-8

// Structuring element radii and the fixed shadow NDVI cut.
const (
	CloudCloseRadius   = 3
	ShadowCloseRadius  = 2
	ShadowSearchRadius = 5
	ShadowNDVI         = 0.1
)

// MinBands is the number of bands brightness is computed over.
const MinBands = 3

// Options configures a Masker.
type Options struct {
	RedBand          int
	NIRBand          int
	CloudBrightness  float64
	CloudNDVI        float64
	ShadowBrightness float64
}

// Masker derives cloud and shadow masks.
type Masker struct {
	opts   Options
	logger *slog.Logger
}

// New returns a Masker. A nil logger uses slog.Default.
func New(opts Options, logger *slog.Logger) *Masker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Masker{opts: opts, logger: logger}
}

// Detect returns the cloud and shadow masks of img.
//
// Images with fewer than three bands, or whose red/NIR roles fall outside
// the band list, yield two all-false masks and a warning: "no clouds" is a
// usable answer downstream.
func (m *Masker) Detect(img *raster.Image) (cloud, shadow raster.Mask) {
	rows, cols := img.Rows(), img.Cols()
	n := img.BandCount()
	if n < MinBands || m.opts.RedBand >= n || m.opts.NIRBand >= n {
		m.logger.Warn("insufficient bands for cloud/shadow detection",
			"bands", n, "red", m.opts.RedBand, "nir", m.opts.NIRBand)
		return raster.NewMask(rows, cols), raster.NewMask(rows, cols)
	}

	ndvi := NDVI(img.Bands[m.opts.RedBand], img.Bands[m.opts.NIRBand])
	brightness := Brightness(img)

	cloud = raster.NewMask(rows, cols)
	for i := range cloud.Data {
		cloud.Data[i] = brightness.Data[i] > m.opts.CloudBrightness || ndvi.Data[i] < m.opts.CloudNDVI
	}

	shadow = m.shadows(brightness, ndvi, cloud)

	cloud = Close(cloud, CloudCloseRadius)
	shadow = Close(shadow, ShadowCloseRadius)

	m.logger.Debug("cloud/shadow masks",
		"cloud_coverage", Coverage(cloud), "shadow_coverage", Coverage(shadow))
	return cloud, shadow
}

// shadows flags dark, non-vegetated pixels within ShadowSearchRadius of a
// cloud. Shadows far from any cloud are not flagged.
func (m *Masker) shadows(brightness, ndvi raster.Grid, cloud raster.Mask) raster.Mask {
	near := Dilate(cloud, ShadowSearchRadius)
	out := raster.NewMask(cloud.Rows, cloud.Cols)
	for i := range out.Data {
		out.Data[i] = brightness.Data[i] < m.opts.ShadowBrightness && ndvi.Data[i] < ShadowNDVI && near.Data[i]
	}
	return out
}

// NDVI returns (nir - red) / (nir + red + Epsilon) per pixel.
func NDVI(red, nir raster.Grid) raster.Grid {
	out := raster.NewGrid(red.Rows, red.Cols)
	for i := range out.Data {
		out.Data[i] = (nir.Data[i] - red.Data[i]) / (nir.Data[i] + red.Data[i] + Epsilon)
	}
	return out
}

// Brightness returns the per-pixel mean of the first three bands.
func Brightness(img *raster.Image) raster.Grid {
	out := raster.NewGrid(img.Rows(), img.Cols())
	for _, b := range img.Bands[:MinBands] {
		for i, v := range b.Data {
			out.Data[i] += v
		}
	}
	for i := range out.Data {
		out.Data[i] /= MinBands
	}
	return out
}

// Coverage returns the fraction of true pixels in m.
func Coverage(m raster.Mask) float64 {
	if m.Len() == 0 {
		return 0
	}
	return float64(m.Count()) / float64(m.Len())
}
