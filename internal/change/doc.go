// Package change turns two preprocessed rasters and their invalid-pixel
// masks into a change surface, classifies it and summarizes it.
//
// The package has three stages, each a pure function over value-typed grids:
//
//   - Differ.Difference computes the per-band normalized difference
//     (b2 - b1) / (b1 + ε), averaged across the bands both images share,
//     restricted to pixels valid in both images.
//   - Classify derives magnitude, direction and the significance mask, and
//     produces the change-type tally.
//   - Aggregate reduces the classification to summary statistics.
//
// When too few pixels are valid, Differ.Difference returns
// ErrInsufficientData and Insufficient builds the defined zero-filled
// result. That outcome is a terminal state, not a failure.
//
// # Change-type tally
//
// The tally buckets are vegetation_loss, vegetation_gain, urban_expansion,
// water_changes and other. Counting into them is not implemented and every
// bucket is reported as zero; callers must not rely on it for per-pixel
// attribution.
package change
