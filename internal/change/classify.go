package change

import "github.com/ironsheep/change-detect-mcp/internal/raster"

// Change-type labels reported in a Tally.
const (
	VegetationLoss = "vegetation_loss"
	VegetationGain = "vegetation_gain"
	UrbanExpansion = "urban_expansion"
	WaterChanges   = "water_changes"
	Other          = "other"
)

// Labels lists the tally labels in reporting order.
var Labels = []string{VegetationLoss, VegetationGain, UrbanExpansion, WaterChanges, Other}

// Tally maps a change-type label to a pixel count.
type Tally map[string]int

// NewTally returns a tally with every label present and zero.
func NewTally() Tally {
	t := make(Tally, len(Labels))
	for _, l := range Labels {
		t[l] = 0
	}
	return t
}

// Total returns the sum of all buckets.
func (t Tally) Total() int {
	n := 0
	for _, v := range t {
		n += v
	}
	return n
}

// Classification is the output of Classify.
type Classification struct {
	// Magnitude is |diff|, never negative.
	Magnitude raster.Grid

	// Direction is sign(diff): -1, 0 or +1.
	Direction raster.Grid

	// Significant marks valid pixels whose magnitude exceeds the threshold.
	Significant raster.Mask

	Tally Tally
}

// Classify derives magnitude, direction and significance from a difference
// surface. Pixels outside valid are never significant.
func Classify(diff *Difference, valid raster.Mask, threshold float64) Classification {
	g := diff.Values
	c := Classification{
		Magnitude:   raster.NewGrid(g.Rows, g.Cols),
		Direction:   raster.NewGrid(g.Rows, g.Cols),
		Significant: raster.NewMask(g.Rows, g.Cols),
	}
	for i, v := range g.Data {
		switch {
		case v > 0:
			c.Magnitude.Data[i] = v
			c.Direction.Data[i] = 1
		case v < 0:
			c.Magnitude.Data[i] = -v
			c.Direction.Data[i] = -1
		}
		c.Significant.Data[i] = valid.Data[i] && c.Magnitude.Data[i] > threshold
	}
	c.Tally = tallyChanges(c)
	return c
}

// tallyChanges buckets significant pixels by change type. No rule assigns a
// pixel to a bucket yet, so every count stays zero.
// TODO: attribute pixels once per-band roles drive a land-cover rule set.
func tallyChanges(Classification) Tally {
	return NewTally()
}
