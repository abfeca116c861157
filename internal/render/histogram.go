package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/png" // Register PNG format decoder

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Histogram plot size.
const (
	histogramWidth  = 6 * vg.Inch
	histogramHeight = 4 * vg.Inch
)

// Histogram plots the distribution of values in bins buckets and returns the
// chart as base64 PNG.
func Histogram(values []float64, bins int, title, xLabel string) (*Result, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("histogram needs at least one value")
	}
	if bins <= 0 {
		return nil, fmt.Errorf("histogram bins must be positive, got %d", bins)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "pixels"

	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return nil, fmt.Errorf("failed to build histogram: %w", err)
	}
	p.Add(h)

	wt, err := p.WriterTo(histogramWidth, histogramHeight, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to render histogram: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode histogram: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to read histogram size: %w", err)
	}

	return &Result{
		Width:       cfg.Width,
		Height:      cfg.Height,
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
