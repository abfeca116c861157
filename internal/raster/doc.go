// Package raster provides georeferenced multi-band raster loading and the
// grid types shared by every stage of the change-detection pipeline.
//
// A raster is held as an Image: an ordered list of float64 bands (Grid) that
// all share the same number of rows and columns, a coordinate reference
// system identifier, an affine GeoTransform and a nodata value. Boolean
// per-pixel state (cloud, shadow, valid, significant) is held as a Mask with
// the same dimensions as the image it was derived from.
//
// # Coordinate System
//
// Grids are row-major. Row 0 is the top (north) edge of the raster and
// column 0 the left (west) edge:
//   - Row: vertical position (0 = topmost pixel row)
//   - Col: horizontal position (0 = leftmost pixel column)
//   - Index into Data is row*Cols + col
//
// Geographic coordinates follow the GeoTransform in GDAL order:
//
//	x = gt[0] + col*gt[1] + row*gt[2]
//	y = gt[3] + col*gt[4] + row*gt[5]
//
// The canonical CRS is geographic WGS84 (EPSG:4326), so x is longitude and
// y is latitude once an image has been loaded.
//
// # Loading
//
// Loaders open a file, reproject it to EPSG:4326 when needed, crop it to an
// optional area-of-interest Polygon and normalize it to the unit interval.
// Two implementations exist:
//   - The default build decodes TIFF, PNG, JPEG and BMP in pure Go and reads
//     georeferencing from a world file and a .prj sidecar.
//   - Building with -tags gdal uses GDAL through godal, which reads any
//     GDAL-supported raster and performs bilinear reprojection.
//
// # Ownership
//
// An Image is not mutated after a loader returns it. Stages that need a
// modified copy allocate a new Image; nothing in this package keeps a
// reference to an image it has returned.
//
// # Error Handling
//
// Failures to open, georeference, reproject or crop a raster wrap
// ErrPreprocessing. Grids with different shapes wrap ErrDimensionMismatch.
// Malformed area-of-interest geometry wraps ErrInvalidAOI.
package raster
