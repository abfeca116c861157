package raster

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"log/slog"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
)

// Loader opens georeferenced rasters.
//
// Load returns an image in the canonical CRS, cropped to aoi when aoi is
// non-nil, with values normalized to [0, 1]. Implementations must not keep
// references to returned images.
type Loader interface {
	Load(path string, aoi *Polygon) (*Image, error)
	Inspect(path string) (*Info, error)
}

// Info contains metadata about a raster file.
//
// Georeferencing fields are left empty when the raster has none, so Info can
// describe files that Load would reject.
type Info struct {
	// Width is the raster width in pixels.
	Width int `json:"width"`

	// Height is the raster height in pixels.
	Height int `json:"height"`

	// Bands is the number of bands the loader will expose.
	Bands int `json:"bands"`

	// CRS is the coordinate reference system as read from the file or its
	// sidecar. Empty when none was found.
	CRS string `json:"crs"`

	// Transform is the affine geotransform. Zero when the raster is not
	// georeferenced.
	Transform GeoTransform `json:"transform"`

	// Georeferenced is true when both a transform and a CRS were found.
	Georeferenced bool `json:"georeferenced"`

	// Format is the detected file format: "tiff", "png", "jpeg", "gif",
	// "bmp", a GDAL driver name, or "unknown".
	Format string `json:"format"`

	// FileSizeBytes is the size of the raster file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// FileLoader is the pure-Go loader. It decodes common image formats and reads
// georeferencing from sidecar files.
//
// # Bands
//
// Colour channels become bands at the file's native bit depth:
//   - Gray, Gray16: 1 band
//   - RGBA, NRGBA, RGBA64, NRGBA64: 4 bands when the fourth sample varies
//     (4-band TIFFs decode this way), 3 bands when it is uniformly opaque
//   - Other colour models: 3 bands (R, G, B)
//
// # Georeferencing
//
// The geotransform comes from a world file next to the raster (for
// scene.tif: scene.tfw, scene.tifw or scene.wld). The CRS comes from
// scene.prj, which may hold WKT or an "EPSG:<code>" string.
//
// FileLoader cannot reproject. A raster in any CRS other than EPSG:4326 is
// reported as a preprocessing error; build with -tags gdal to reproject.
type FileLoader struct {
	Logger *slog.Logger
}

func (l FileLoader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// Load decodes path, checks its CRS, crops it to aoi and normalizes it.
func (l FileLoader) Load(path string, aoi *Polygon) (*Image, error) {
	img, err := l.read(path)
	if err != nil {
		return nil, err
	}
	if !IsCanonicalCRS(img.CRS) {
		return nil, fmt.Errorf("%w: %s is in %s; reprojection to %s requires the gdal build",
			ErrPreprocessing, path, img.CRS, CanonicalCRS)
	}
	img.CRS = CanonicalCRS

	cropped, err := Crop(img, aoi)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := Normalize(cropped)
	l.logger().Info("preprocessed raster",
		"path", path, "bands", out.BandCount(), "rows", out.Rows(), "cols", out.Cols())
	return out, nil
}

// Inspect returns metadata for path. Georeferencing is reported as found;
// missing sidecars are not an error here.
func (l FileLoader) Inspect(path string) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stat raster: %w", ErrPreprocessing, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open raster: %w", ErrPreprocessing, err)
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode raster: %w", ErrPreprocessing, err)
	}

	info := &Info{
		Width:         src.Bounds().Dx(),
		Height:        src.Bounds().Dy(),
		Bands:         len(decodeBands(src)),
		Format:        format,
		FileSizeBytes: stat.Size(),
	}
	if gt, err := readWorldFile(path); err == nil {
		info.Transform = gt
	}
	if crs, err := readCRS(path); err == nil {
		info.CRS = crs
	}
	info.Georeferenced = info.Transform != (GeoTransform{}) && info.CRS != ""
	return info, nil
}

// read decodes path into bands and attaches sidecar georeferencing.
func (l FileLoader) read(path string) (*Image, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open raster: %w", ErrPreprocessing, err)
	}

	gt, err := readWorldFile(path)
	if err != nil {
		return nil, err
	}
	crs, err := readCRS(path)
	if err != nil {
		return nil, err
	}

	return NewImage(decodeBands(src), crs, gt, 0)
}

// decodeBands splits an image into float64 bands at native bit depth.
func decodeBands(src image.Image) []Grid {
	b := src.Bounds()
	rows, cols := b.Dy(), b.Dx()

	switch img := src.(type) {
	case *image.Gray:
		g := NewGrid(rows, cols)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				g.Set(r, c, float64(img.Pix[r*img.Stride+c]))
			}
		}
		return []Grid{g}

	case *image.Gray16:
		g := NewGrid(rows, cols)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				i := r*img.Stride + c*2
				g.Set(r, c, float64(uint16(img.Pix[i])<<8|uint16(img.Pix[i+1])))
			}
		}
		return []Grid{g}

	case *image.NRGBA:
		return dropOpaque(interleaved8(img.Pix, img.Stride, rows, cols), 0xff)
	case *image.RGBA:
		return dropOpaque(interleaved8(img.Pix, img.Stride, rows, cols), 0xff)
	case *image.NRGBA64:
		return dropOpaque(interleaved16(img.Pix, img.Stride, rows, cols), 0xffff)
	case *image.RGBA64:
		return dropOpaque(interleaved16(img.Pix, img.Stride, rows, cols), 0xffff)
	}

	bands := []Grid{NewGrid(rows, cols), NewGrid(rows, cols), NewGrid(rows, cols)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cr, cg, cb, _ := src.At(b.Min.X+c, b.Min.Y+r).RGBA()
			bands[0].Set(r, c, float64(cr>>8))
			bands[1].Set(r, c, float64(cg>>8))
			bands[2].Set(r, c, float64(cb>>8))
		}
	}
	return bands
}

func interleaved8(pix []uint8, stride, rows, cols int) []Grid {
	bands := []Grid{NewGrid(rows, cols), NewGrid(rows, cols), NewGrid(rows, cols), NewGrid(rows, cols)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*stride + c*4
			for k := 0; k < 4; k++ {
				bands[k].Set(r, c, float64(pix[i+k]))
			}
		}
	}
	return bands
}

func interleaved16(pix []uint8, stride, rows, cols int) []Grid {
	bands := []Grid{NewGrid(rows, cols), NewGrid(rows, cols), NewGrid(rows, cols), NewGrid(rows, cols)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*stride + c*8
			for k := 0; k < 4; k++ {
				j := i + k*2
				bands[k].Set(r, c, float64(uint16(pix[j])<<8|uint16(pix[j+1])))
			}
		}
	}
	return bands
}

// dropOpaque removes the fourth band when every sample in it is opaque.
func dropOpaque(bands []Grid, opaque float64) []Grid {
	for _, v := range bands[3].Data {
		if v != opaque {
			return bands
		}
	}
	return bands[:3]
}
