package raster

import (
	"errors"
	"testing"
)

// indexedImage returns a single-band rows x cols image whose value at (r, c)
// is r*10 + c + 1, with x = col and y = rows - row.
func indexedImage(t *testing.T, rows, cols int) *Image {
	t.Helper()
	g := NewGrid(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g.Set(r, c, float64(r*10+c+1))
		}
	}
	img, err := NewImage([]Grid{g}, CanonicalCRS, GeoTransform{0, 1, 0, float64(rows), 0, -1}, 0)
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	return img
}

func TestCrop_NilAOI(t *testing.T) {
	img := indexedImage(t, 10, 10)
	out, err := Crop(img, nil)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if out != img {
		t.Error("nil AOI should return the input image")
	}
}

func TestCrop_Square(t *testing.T) {
	img := indexedImage(t, 10, 10)
	aoi := NewPolygon([]Point{{2, 2}, {6, 2}, {6, 6}, {2, 6}})

	out, err := Crop(img, aoi)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if out.Rows() != 4 || out.Cols() != 4 {
		t.Fatalf("dimensions: got %dx%d, want 4x4", out.Rows(), out.Cols())
	}
	// y=6 is row 4, x=2 is col 2.
	if got := out.Bands[0].At(0, 0); got != 43 {
		t.Errorf("top-left value: got %f, want 43", got)
	}
	if out.Transform[0] != 2 || out.Transform[3] != 6 {
		t.Errorf("origin: got (%f, %f), want (2, 6)", out.Transform[0], out.Transform[3])
	}
}

func TestCrop_TriangleFillsOutsideWithZero(t *testing.T) {
	img := indexedImage(t, 10, 10)
	aoi := NewPolygon([]Point{{2, 2}, {6, 2}, {2, 6}})

	out, err := Crop(img, aoi)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if got := out.Bands[0].At(0, 3); got != 0 {
		t.Errorf("pixel outside triangle: got %f, want 0", got)
	}
	if got := out.Bands[0].At(3, 0); got != 73 {
		t.Errorf("pixel inside triangle: got %f, want 73", got)
	}
}

func TestCrop_NoIntersection(t *testing.T) {
	img := indexedImage(t, 10, 10)
	aoi := NewPolygon([]Point{{50, 50}, {60, 50}, {60, 60}, {50, 60}})

	_, err := Crop(img, aoi)
	if !errors.Is(err, ErrPreprocessing) {
		t.Errorf("expected ErrPreprocessing, got %v", err)
	}
}

func TestCrop_NoPixelCentres(t *testing.T) {
	img := indexedImage(t, 10, 10)
	// The bounding box overlaps the top-right corner pixels but the
	// triangle itself stays beyond their centres.
	aoi := NewPolygon([]Point{{20, 8}, {20, 20}, {8, 20}})

	_, err := Crop(img, aoi)
	if !errors.Is(err, ErrPreprocessing) {
		t.Errorf("expected ErrPreprocessing, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	a := NewGrid(2, 2)
	a.Fill(100)
	b := NewGrid(2, 2)
	b.Fill(400)
	img, err := NewImage([]Grid{a, b}, CanonicalCRS, IdentityTransform, 0)
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}

	Normalize(img)
	if got := img.Bands[0].At(1, 1); got != 0.25 {
		t.Errorf("band 1: got %f, want 0.25", got)
	}
	if got := img.Bands[1].At(0, 0); got != 1 {
		t.Errorf("band 2: got %f, want 1", got)
	}
}

func TestNormalize_AlreadyUnit(t *testing.T) {
	a := NewGrid(1, 2)
	a.Data[0], a.Data[1] = 0.2, 0.8
	img, _ := NewImage([]Grid{a}, CanonicalCRS, IdentityTransform, 0)

	Normalize(img)
	if img.Bands[0].Data[0] != 0.2 || img.Bands[0].Data[1] != 0.8 {
		t.Errorf("values changed: %v", img.Bands[0].Data)
	}
}

func TestNewImage_RejectsMismatchedBands(t *testing.T) {
	_, err := NewImage([]Grid{NewGrid(2, 2), NewGrid(3, 2)}, CanonicalCRS, IdentityTransform, 0)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	_, err = NewImage(nil, CanonicalCRS, IdentityTransform, 0)
	if !errors.Is(err, ErrPreprocessing) {
		t.Errorf("expected ErrPreprocessing for no bands, got %v", err)
	}
}

func TestResample(t *testing.T) {
	img := indexedImage(t, 4, 4)

	same := Resample(img, 4, 4)
	for i, v := range img.Bands[0].Data {
		if same.Bands[0].Data[i] != v {
			t.Fatalf("same-size resample changed value %d: got %f, want %f", i, same.Bands[0].Data[i], v)
		}
	}

	up := Resample(img, 8, 8)
	if up.Rows() != 8 || up.Cols() != 8 {
		t.Fatalf("dimensions: got %dx%d, want 8x8", up.Rows(), up.Cols())
	}
	if up.Transform[1] != 0.5 || up.Transform[5] != -0.5 {
		t.Errorf("pixel size: got (%f, %f), want (0.5, -0.5)", up.Transform[1], up.Transform[5])
	}
	// Corners replicate edge pixels.
	if got := up.Bands[0].At(0, 0); got != 1 {
		t.Errorf("top-left: got %f, want 1", got)
	}
	if got := up.Bands[0].At(7, 7); got != 34 {
		t.Errorf("bottom-right: got %f, want 34", got)
	}
}

func TestMask_Or(t *testing.T) {
	a := NewMask(1, 3)
	b := NewMask(1, 3)
	a.Data[0] = true
	b.Data[2] = true

	u, err := a.Or(b)
	if err != nil {
		t.Fatalf("Or failed: %v", err)
	}
	if u.Count() != 2 || !u.Data[0] || u.Data[1] || !u.Data[2] {
		t.Errorf("union: got %v", u.Data)
	}
	if n := u.Not().Count(); n != 1 {
		t.Errorf("complement count: got %d, want 1", n)
	}

	if _, err := a.Or(NewMask(2, 2)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}
