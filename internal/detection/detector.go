package detection

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ironsheep/change-detect-mcp/internal/change"
	"github.com/ironsheep/change-detect-mcp/internal/config"
	"github.com/ironsheep/change-detect-mcp/internal/masking"
	"github.com/ironsheep/change-detect-mcp/internal/raster"
)

// Observer receives stage transitions of a run.
type Observer func(Stage)

// Option configures a Detector.
type Option func(*Detector)

// WithLoader replaces the raster loader compiled into the build.
func WithLoader(l raster.Loader) Option {
	return func(d *Detector) { d.loader = l }
}

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// WithObserver registers an observer for stage transitions.
func WithObserver(o Observer) Option {
	return func(d *Detector) { d.observer = o }
}

// Detector runs change detection with a fixed configuration.
type Detector struct {
	cfg      config.Detection
	loader   raster.Loader
	masker   *masking.Masker
	differ   change.Differ
	logger   *slog.Logger
	observer Observer
}

// New returns a Detector for cfg. The configuration is copied and never
// modified afterwards.
func New(cfg config.Detection, opts ...Option) *Detector {
	d := &Detector{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	if d.loader == nil {
		d.loader = raster.DefaultLoader(d.logger)
	}
	d.masker = masking.New(masking.Options{
		RedBand:          cfg.RedBand,
		NIRBand:          cfg.NIRBand,
		CloudBrightness:  cfg.CloudBrightnessThreshold,
		CloudNDVI:        cfg.CloudNDVIThreshold,
		ShadowBrightness: cfg.ShadowBrightnessThreshold,
	}, d.logger)
	d.differ = change.Differ{MinValidPixels: cfg.MinValidPixels}
	return d
}

// With returns a copy of d with opts applied. The copy shares the loader
// unless an option replaces it.
func (d *Detector) With(opts ...Option) *Detector {
	cp := *d
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// Config returns the detection configuration.
func (d *Detector) Config() config.Detection { return d.cfg }

// Loader returns the raster loader.
func (d *Detector) Loader() raster.Loader { return d.loader }

// Masker returns the cloud/shadow masker built from the configuration.
func (d *Detector) Masker() *masking.Masker { return d.masker }

// Run loads the before and after rasters, cropped to aoi when non-nil, and
// analyzes them. See RunImages.
func (d *Detector) Run(beforePath, afterPath string, aoi *raster.Polygon) (*Analysis, error) {
	before, after, err := d.load(beforePath, afterPath, aoi)
	if err != nil {
		return nil, err
	}
	return d.RunImages(before, after)
}

// RunImages analyzes two images as returned by a Loader.
//
// Images with fewer than the configured minimum bands fail with
// ErrBandCount, or are analyzed in reduced mode when fallback is enabled.
// Images of different shape fail with ErrDimensionMismatch unless
// resampling is enabled. Too few valid pixels yield the insufficient-data
// result, not an error.
func (d *Detector) RunImages(before, after *raster.Image) (*Analysis, error) {
	if n := min(before.BandCount(), after.BandCount()); n < d.cfg.MinBands {
		err := fmt.Errorf("%w: full analysis needs %d, got before=%d after=%d",
			ErrBandCount, d.cfg.MinBands, before.BandCount(), after.BandCount())
		if !d.cfg.FallbackToReduced {
			return nil, &StageError{Stage: StageLoading, Err: err}
		}
		d.logger.Warn("falling back to reduced NDVI analysis", "reason", err)
		return d.RunReducedImages(before, after)
	}

	after, err := d.reconcile(before, after)
	if err != nil {
		return nil, &StageError{Stage: StageLoading, Err: err}
	}

	d.enter(StageMasking)
	invalid1, err := d.invalid(before)
	if err != nil {
		return nil, &StageError{Stage: StageMasking, Err: err}
	}
	invalid2, err := d.invalid(after)
	if err != nil {
		return nil, &StageError{Stage: StageMasking, Err: err}
	}

	d.enter(StageDifferencing)
	meta := d.metadata()
	diff, valid, err := d.differ.Difference(before, after, invalid1, invalid2)
	if errors.Is(err, ErrInsufficientData) {
		d.logger.Warn("insufficient valid pixels for change detection",
			"valid", valid.Count(), "min", d.cfg.MinValidPixels)
		d.enter(StageDone)
		return &Analysis{
			Mode: ModeFull,
			Full: change.Insufficient(before.Rows(), before.Cols(), valid, meta),
		}, nil
	}
	if err != nil {
		return nil, &StageError{Stage: StageDifferencing, Err: err}
	}

	d.enter(StageClassifying)
	c := change.Classify(diff, valid, d.cfg.ChangeThreshold)

	d.enter(StageAggregating)
	result := change.NewResult(c, valid, meta)

	d.enter(StageDone)
	d.logger.Info("change detection completed",
		"valid_pixels", result.Statistics.ValidPixels,
		"changed_pixels", result.Statistics.ChangedPixels,
		"change_percentage", result.Statistics.ChangePercentage)
	return &Analysis{Mode: ModeFull, Full: result}, nil
}

// load runs the Loading stage.
func (d *Detector) load(beforePath, afterPath string, aoi *raster.Polygon) (*raster.Image, *raster.Image, error) {
	d.enter(StageLoading)
	before, err := d.loader.Load(beforePath, aoi)
	if err != nil {
		return nil, nil, &StageError{Stage: StageLoading, Err: fmt.Errorf("before image: %w", err)}
	}
	after, err := d.loader.Load(afterPath, aoi)
	if err != nil {
		return nil, nil, &StageError{Stage: StageLoading, Err: fmt.Errorf("after image: %w", err)}
	}
	return before, after, nil
}

// reconcile brings after onto the before grid when resampling is enabled.
func (d *Detector) reconcile(before, after *raster.Image) (*raster.Image, error) {
	err := raster.CheckSameGrid(before, after)
	if err == nil {
		return after, nil
	}
	if !d.cfg.ResampleMismatched {
		return nil, err
	}
	d.logger.Warn("resampling after image onto before grid",
		"from_rows", after.Rows(), "from_cols", after.Cols(),
		"to_rows", before.Rows(), "to_cols", before.Cols())
	return raster.Resample(after, before.Rows(), before.Cols()), nil
}

// invalid returns the union of the cloud and shadow masks of img.
func (d *Detector) invalid(img *raster.Image) (raster.Mask, error) {
	cloud, shadow := d.masker.Detect(img)
	return cloud.Or(shadow)
}

func (d *Detector) metadata() change.Metadata {
	return change.Metadata{
		Algorithm: change.Algorithm,
		Thresholds: map[string]float64{
			"cloud_brightness_threshold":  d.cfg.CloudBrightnessThreshold,
			"cloud_ndvi_threshold":        d.cfg.CloudNDVIThreshold,
			"shadow_brightness_threshold": d.cfg.ShadowBrightnessThreshold,
			"min_change_threshold":        d.cfg.ChangeThreshold,
		},
		BandsUsed: map[string]int{
			"red":   d.cfg.RedBand,
			"green": d.cfg.GreenBand,
			"nir":   d.cfg.NIRBand,
		},
	}
}

func (d *Detector) enter(s Stage) {
	d.logger.Debug("detection stage", "stage", s)
	if d.observer != nil {
		d.observer(s)
	}
}
