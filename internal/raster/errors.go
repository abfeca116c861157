package raster

import "errors"

// Sentinel errors for raster operations.
var (
	ErrPreprocessing     = errors.New("preprocessing failed")
	ErrDimensionMismatch = errors.New("raster dimensions do not match")
	ErrInvalidAOI        = errors.New("invalid area of interest")
)
