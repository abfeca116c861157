// Package detection runs land-cover change detection on a before/after pair
// of rasters.
//
// A Detector sequences the pipeline stages and assembles one Analysis:
//
//  1. Loading: open both rasters, reproject, crop to the AOI and normalize
//  2. Masking: derive cloud and shadow masks for each image
//  3. Differencing: combine per-band normalized differences over pixels
//     valid in both images
//  4. Classifying: magnitude, direction, significance and change-type tally
//  5. Aggregating: summary statistics
//
// When too few pixels are valid the run leaves Differencing directly for
// Done with the insufficient-data result. Any other stage failure aborts the
// run with a *StageError naming the stage; no partial result is returned
// and nothing is retried.
//
// # Analysis Modes
//
// An Analysis is tagged with the mode that produced it:
//
//   - ModeFull: the multi-band analysis above. Analysis.Full is set.
//   - ModeReduced: an NDVI-only comparison of a red and a near-infrared band
//     with no cloud or shadow masking. Analysis.Reduced is set.
//
// The reduced mode is lower fidelity. It runs when requested through
// RunReduced, or when an image has fewer bands than the full analysis needs
// and the configuration allows falling back. Callers can always tell which
// mode answered by checking Analysis.Mode.
//
// # Concurrency
//
// A Detector holds only its configuration and collaborators, so one
// Detector may serve concurrent runs. Each run owns its images, masks and
// intermediate grids. Observers are called from the goroutine running the
// detection and must be safe for concurrent use when the Detector is
// shared.
//
// # Errors
//
// Errors wrap the sentinels re-exported here (ErrPreprocessing,
// ErrBandCount, ErrDimensionMismatch, ErrInvalidAOI, ErrInsufficientData) so
// callers can use errors.Is regardless of the stage that failed.
package detection
