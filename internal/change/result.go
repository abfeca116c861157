package change

import "github.com/ironsheep/change-detect-mcp/internal/raster"

// Algorithm names the multi-band analysis in result metadata.
const Algorithm = "multi-spectral_change_detection"

// InsufficientValidPixels is the metadata error flag of an insufficient-data
// result.
const InsufficientValidPixels = "insufficient_valid_pixels"

// Metadata describes how a Result was produced.
type Metadata struct {
	Algorithm  string             `json:"algorithm"`
	Thresholds map[string]float64 `json:"thresholds"`
	BandsUsed  map[string]int     `json:"bands_used"`
	Error      string             `json:"error,omitempty"`
}

// Result is the terminal artifact of a full analysis.
type Result struct {
	Magnitude   raster.Grid
	Direction   raster.Grid
	Significant raster.Mask
	Valid       raster.Mask
	Tally       Tally
	Statistics  Statistics
	Metadata    Metadata
}

// NewResult aggregates c over valid and assembles the result.
func NewResult(c Classification, valid raster.Mask, meta Metadata) *Result {
	return &Result{
		Magnitude:   c.Magnitude,
		Direction:   c.Direction,
		Significant: c.Significant,
		Valid:       valid,
		Tally:       c.Tally,
		Statistics:  Aggregate(c.Magnitude, c.Significant, valid),
		Metadata:    meta,
	}
}

// Insufficient returns the insufficient-data result: zero magnitude and
// direction grids of rows x cols, no significant pixels, an all-zero tally
// and all-zero statistics. The valid mask is kept so callers can still see
// which pixels survived masking. meta.Error is set to
// InsufficientValidPixels.
func Insufficient(rows, cols int, valid raster.Mask, meta Metadata) *Result {
	meta.Error = InsufficientValidPixels
	return &Result{
		Magnitude:   raster.NewGrid(rows, cols),
		Direction:   raster.NewGrid(rows, cols),
		Significant: raster.NewMask(rows, cols),
		Valid:       valid,
		Tally:       NewTally(),
		Metadata:    meta,
	}
}

// IsInsufficient reports whether r is the insufficient-data result.
func (r *Result) IsInsufficient() bool {
	return r.Metadata.Error == InsufficientValidPixels
}
