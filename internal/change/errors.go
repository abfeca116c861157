package change

import (
	"errors"

	"github.com/ironsheep/change-detect-mcp/internal/raster"
)

// ErrInsufficientData reports that fewer pixels than the configured floor
// are valid in both images.
var ErrInsufficientData = errors.New("insufficient valid pixels")

// ErrDimensionMismatch is returned when images or masks differ in shape.
var ErrDimensionMismatch = raster.ErrDimensionMismatch
