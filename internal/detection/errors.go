package detection

import (
	"errors"
	"fmt"

	"github.com/ironsheep/change-detect-mcp/internal/change"
	"github.com/ironsheep/change-detect-mcp/internal/raster"
)

// Sentinel errors for detection runs.
var (
	// ErrPreprocessing covers unreadable files, missing or unsupported CRS,
	// reprojection failures and AOIs that do not intersect the raster.
	ErrPreprocessing = raster.ErrPreprocessing

	// ErrInsufficientData is the soft error behind the insufficient-data
	// result. Run never returns it.
	ErrInsufficientData = change.ErrInsufficientData

	// ErrBandCount reports an image with too few bands for the requested
	// analysis.
	ErrBandCount = errors.New("insufficient bands")

	// ErrDimensionMismatch reports before/after images of different shape.
	ErrDimensionMismatch = raster.ErrDimensionMismatch

	// ErrInvalidAOI reports a malformed or self-intersecting AOI polygon.
	ErrInvalidAOI = raster.ErrInvalidAOI
)

// Stage names a step of a detection run.
type Stage string

// Pipeline stages in execution order.
const (
	StageLoading      Stage = "loading"
	StageMasking      Stage = "masking"
	StageDifferencing Stage = "differencing"
	StageClassifying  Stage = "classifying"
	StageAggregating  Stage = "aggregating"
	StageDone         Stage = "done"
)

// StageError records the stage at which a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, or "" when err carries
// none.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
