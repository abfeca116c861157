//go:build !gdal

package raster

import "log/slog"

// DefaultLoader returns the loader compiled into this build: the pure-Go
// FileLoader. Build with -tags gdal for GDAL-backed loading.
func DefaultLoader(logger *slog.Logger) Loader {
	return FileLoader{Logger: logger}
}

// Backend names the raster backend compiled into this build.
const Backend = "go"
