package detection

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/change-detect-mcp/internal/raster"
)

// ReducedAlgorithm names the NDVI-only analysis.
const ReducedAlgorithm = "ndvi_difference"

// NDVIResult is the outcome of the reduced analysis: the share of pixels
// whose NDVI moved by more than the threshold, and the mean NDVI of each
// image. No cloud or shadow masking is applied.
type NDVIResult struct {
	Algorithm        string         `json:"algorithm"`
	ChangePercentage float64        `json:"change_percentage"`
	ChangedPixels    int            `json:"changed_pixels"`
	TotalPixels      int            `json:"total_pixels"`
	ChangeMaskShape  [2]int         `json:"change_mask_shape"`
	NDVIBeforeMean   float64        `json:"ndvi_before_mean"`
	NDVIAfterMean    float64        `json:"ndvi_after_mean"`
	Threshold        float64        `json:"threshold"`
	BandsUsed        map[string]int `json:"bands_used"`

	// Delta is NDVI after minus NDVI before.
	Delta raster.Grid `json:"-"`

	// ChangeMask marks pixels with |Delta| above Threshold.
	ChangeMask raster.Mask `json:"-"`
}

// RunReduced loads both rasters and runs the reduced analysis.
func (d *Detector) RunReduced(beforePath, afterPath string, aoi *raster.Polygon) (*Analysis, error) {
	before, after, err := d.load(beforePath, afterPath, aoi)
	if err != nil {
		return nil, err
	}
	return d.RunReducedImages(before, after)
}

// RunReducedImages compares the NDVI of two images. Each image needs at
// least two bands. Roles are resolved per image: the configured reduced
// roles when both are in range, then the full-analysis red and NIR roles,
// then the first band as red and the last as NIR. Red and NIR are always
// distinct bands.
func (d *Detector) RunReducedImages(before, after *raster.Image) (*Analysis, error) {
	for _, img := range []*raster.Image{before, after} {
		if img.BandCount() < 2 {
			return nil, &StageError{Stage: StageLoading,
				Err: fmt.Errorf("%w: reduced analysis needs 2, got %d", ErrBandCount, img.BandCount())}
		}
	}
	after, err := d.reconcile(before, after)
	if err != nil {
		return nil, &StageError{Stage: StageLoading, Err: err}
	}

	d.enter(StageDifferencing)
	redB, nirB := d.reducedRoles(before.BandCount())
	redA, nirA := d.reducedRoles(after.BandCount())
	ndviBefore := ratioNDVI(before.Bands[redB], before.Bands[nirB])
	ndviAfter := ratioNDVI(after.Bands[redA], after.Bands[nirA])

	d.enter(StageClassifying)
	rows, cols := before.Rows(), before.Cols()
	delta := raster.NewGrid(rows, cols)
	mask := raster.NewMask(rows, cols)
	for i := range delta.Data {
		v := ndviAfter.Data[i] - ndviBefore.Data[i]
		delta.Data[i] = v
		mask.Data[i] = v > d.cfg.ReducedThreshold || -v > d.cfg.ReducedThreshold
	}

	d.enter(StageAggregating)
	r := &NDVIResult{
		Algorithm:       ReducedAlgorithm,
		ChangedPixels:   mask.Count(),
		TotalPixels:     mask.Len(),
		ChangeMaskShape: [2]int{rows, cols},
		NDVIBeforeMean:  stat.Mean(ndviBefore.Data, nil),
		NDVIAfterMean:   stat.Mean(ndviAfter.Data, nil),
		Threshold:       d.cfg.ReducedThreshold,
		BandsUsed:       bandsUsed(redB, nirB, redA, nirA),
		Delta:           delta,
		ChangeMask:      mask,
	}
	if r.TotalPixels > 0 {
		r.ChangePercentage = float64(r.ChangedPixels) / float64(r.TotalPixels) * 100
	}

	d.enter(StageDone)
	d.logger.Info("reduced NDVI analysis completed",
		"changed_pixels", r.ChangedPixels, "change_percentage", r.ChangePercentage)
	return &Analysis{Mode: ModeReduced, Reduced: r}, nil
}

// reducedRoles picks distinct red and NIR bands for an image with n >= 2
// bands.
func (d *Detector) reducedRoles(n int) (red, nir int) {
	candidates := [][2]int{
		{d.cfg.ReducedRedBand, d.cfg.ReducedNIRBand},
		{d.cfg.RedBand, d.cfg.NIRBand},
	}
	for _, c := range candidates {
		if c[0] < n && c[1] < n && c[0] != c[1] {
			return c[0], c[1]
		}
	}
	return 0, n - 1
}

// bandsUsed reports the roles of the before image, plus those of the after
// image when they differ.
func bandsUsed(redB, nirB, redA, nirA int) map[string]int {
	used := map[string]int{"red": redB, "nir": nirB}
	if redA != redB || nirA != nirB {
		used["after_red"] = redA
		used["after_nir"] = nirA
	}
	return used
}

// ratioNDVI returns (nir - red) / (nir + red) with 0 where the denominator
// is 0.
func ratioNDVI(red, nir raster.Grid) raster.Grid {
	out := raster.NewGrid(red.Rows, red.Cols)
	for i := range out.Data {
		sum := nir.Data[i] + red.Data[i]
		if sum == 0 {
			continue
		}
		out.Data[i] = (nir.Data[i] - red.Data[i]) / sum
	}
	return out
}
