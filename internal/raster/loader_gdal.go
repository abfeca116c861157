//go:build gdal

package raster

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/airbusgeo/godal"
)

var registerOnce sync.Once

// DefaultLoader returns the GDAL-backed loader.
func DefaultLoader(logger *slog.Logger) Loader {
	registerOnce.Do(godal.RegisterAll)
	return GDALLoader{Logger: logger}
}

// Backend names the raster backend compiled into this build.
const Backend = "gdal"

// GDALLoader opens rasters through GDAL and reprojects them to EPSG:4326
// with bilinear resampling.
type GDALLoader struct {
	Logger *slog.Logger
}

func (l GDALLoader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// Load opens path, warps it to EPSG:4326 when its spatial reference differs,
// crops it to aoi and normalizes it.
func (l GDALLoader) Load(path string, aoi *Polygon) (*Image, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open raster: %w", ErrPreprocessing, err)
	}
	defer ds.Close()

	if ds.Projection() == "" {
		return nil, fmt.Errorf("%w: %s has no coordinate reference system", ErrPreprocessing, path)
	}
	sr := ds.SpatialRef()
	defer sr.Close()

	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPreprocessing, err)
	}
	defer wgs84.Close()

	src := ds
	if !sr.IsSame(wgs84) {
		warped, err := ds.Warp("", []string{"-of", "MEM", "-t_srs", CanonicalCRS, "-r", "bilinear"})
		if err != nil {
			return nil, fmt.Errorf("%w: reprojection to %s failed: %w", ErrPreprocessing, CanonicalCRS, err)
		}
		defer warped.Close()
		src = warped
		l.logger().Debug("reprojected raster", "path", path, "to", CanonicalCRS)
	}

	img, err := readDataset(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cropped, err := Crop(img, aoi)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := Normalize(cropped)
	l.logger().Info("preprocessed raster",
		"path", path, "bands", out.BandCount(), "rows", out.Rows(), "cols", out.Cols())
	return out, nil
}

// Inspect reports raster metadata from the GDAL dataset header.
func (l GDALLoader) Inspect(path string) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stat raster: %w", ErrPreprocessing, err)
	}
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open raster: %w", ErrPreprocessing, err)
	}
	defer ds.Close()

	st := ds.Structure()
	info := &Info{
		Width:         st.SizeX,
		Height:        st.SizeY,
		Bands:         st.NBands,
		Format:        ds.Driver().ShortName(),
		FileSizeBytes: stat.Size(),
	}
	if gt, err := ds.GeoTransform(); err == nil {
		info.Transform = GeoTransform(gt)
	}
	if wkt := ds.Projection(); wkt != "" {
		if crs, err := ParseCRS(wkt); err == nil {
			info.CRS = crs
		} else {
			info.CRS = wkt
		}
	}
	info.Georeferenced = info.Transform != (GeoTransform{}) && info.CRS != ""
	return info, nil
}

// readDataset copies every band of ds into float64 grids.
func readDataset(ds *godal.Dataset) (*Image, error) {
	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("%w: missing geotransform: %w", ErrPreprocessing, err)
	}

	bands := make([]Grid, 0, st.NBands)
	nodata := 0.0
	for i, band := range ds.Bands() {
		g := NewGrid(st.SizeY, st.SizeX)
		if err := band.Read(0, 0, g.Data, st.SizeX, st.SizeY); err != nil {
			return nil, fmt.Errorf("%w: read band %d: %w", ErrPreprocessing, i+1, err)
		}
		if nd, ok := band.NoData(); ok && i == 0 {
			nodata = nd
		}
		bands = append(bands, g)
	}

	img, err := NewImage(bands, CanonicalCRS, GeoTransform(gt), nodata)
	if err != nil {
		return nil, err
	}
	maskNoData(img)
	return img, nil
}

// maskNoData replaces nodata samples with zero so they behave like cropped
// pixels downstream.
func maskNoData(img *Image) {
	if img.NoData == 0 {
		return
	}
	for _, b := range img.Bands {
		for i, v := range b.Data {
			if v == img.NoData {
				b.Data[i] = 0
			}
		}
	}
	img.NoData = 0
}
