package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/change-detect-mcp/internal/raster"
)

// Colour ramps as hex stops, low to high.
var (
	// MagnitudeRamp runs from no change (dark blue) to strong change (yellow).
	MagnitudeRamp = []string{"#0d0887", "#7e03a8", "#cc4778", "#f89540", "#f0f921"}

	// DeltaRamp runs from loss (brown) through no change (white) to gain
	// (green).
	DeltaRamp = []string{"#8c510a", "#f5f5f5", "#01665e"}
)

// Ramp interpolates between colour stops in Lab space.
type Ramp struct {
	stops []colorful.Color
}

// NewRamp parses hex colour stops. At least two stops are required.
func NewRamp(hexStops []string) (*Ramp, error) {
	if len(hexStops) < 2 {
		return nil, fmt.Errorf("colour ramp needs at least 2 stops, got %d", len(hexStops))
	}
	r := &Ramp{stops: make([]colorful.Color, len(hexStops))}
	for i, h := range hexStops {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("invalid ramp colour %q: %w", h, err)
		}
		r.stops[i] = c
	}
	return r, nil
}

// At returns the colour at position t in [0, 1]; t is clamped.
func (r *Ramp) At(t float64) color.NRGBA {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	seg := t * float64(len(r.stops)-1)
	i := int(seg)
	if i >= len(r.stops)-1 {
		i = len(r.stops) - 2
	}
	c := r.stops[i].BlendLab(r.stops[i+1], seg-float64(i)).Clamped()
	cr, cg, cb := c.RGB255()
	return color.NRGBA{R: cr, G: cg, B: cb, A: 255}
}

// Heatmap colours g from 0 to maxValue along ramp. A maxValue <= 0 uses the
// grid maximum. An all-zero grid renders as the first stop.
func Heatmap(g raster.Grid, maxValue float64, ramp *Ramp) *image.NRGBA {
	if maxValue <= 0 {
		maxValue = g.Max()
	}
	out := image.NewNRGBA(image.Rect(0, 0, g.Cols, g.Rows))
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			t := 0.0
			if maxValue > 0 {
				t = g.At(r, c) / maxValue
			}
			out.SetNRGBA(c, r, ramp.At(t))
		}
	}
	return out
}

// Diverging colours g from -limit to +limit along ramp, with 0 at its
// centre. A limit <= 0 uses the largest absolute value in g.
func Diverging(g raster.Grid, limit float64, ramp *Ramp) *image.NRGBA {
	if limit <= 0 {
		for _, v := range g.Data {
			limit = math.Max(limit, math.Abs(v))
		}
	}
	out := image.NewNRGBA(image.Rect(0, 0, g.Cols, g.Rows))
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			t := 0.5
			if limit > 0 {
				t = 0.5 + g.At(r, c)/(2*limit)
			}
			out.SetNRGBA(c, r, ramp.At(t))
		}
	}
	return out
}
