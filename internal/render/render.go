// Package render draws preview images of detection results: magnitude and
// NDVI-delta heatmaps, mask overlays on a true-colour composite, lon/lat
// graticules and magnitude histograms.
//
// Previews are returned as base64-encoded PNG in a Result, the same shape
// the server returns for every image it produces. Save writes a preview to
// disk for the CLI.
package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"
)

// Result contains an encoded preview image
type Result struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Encode scales img down to fit within maxSize x maxSize (when maxSize > 0
// and the image is larger) and encodes it as base64 PNG. Scaling uses
// nearest-neighbour so individual pixels stay visible.
func Encode(img image.Image, maxSize int) (*Result, error) {
	b := img.Bounds()
	if maxSize > 0 && (b.Dx() > maxSize || b.Dy() > maxSize) {
		img = imaging.Fit(img, maxSize, maxSize, imaging.NearestNeighbor)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	return &Result{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// Save writes img to path as PNG.
func Save(path string, img image.Image) error {
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save preview %s: %w", path, err)
	}
	return nil
}
