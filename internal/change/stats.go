package change

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/change-detect-mcp/internal/raster"
)

// Statistics summarizes a classification.
type Statistics struct {
	TotalPixels      int     `json:"total_pixels"`
	ValidPixels      int     `json:"valid_pixels"`
	ChangedPixels    int     `json:"changed_pixels"`
	ChangePercentage float64 `json:"change_percentage"`

	// SignificantChangePercentage always equals ChangePercentage. Both keys
	// are reported for payload compatibility.
	SignificantChangePercentage float64 `json:"significant_change_percentage"`

	MeanChangeMagnitude float64 `json:"mean_change_magnitude"`
	MaxChangeMagnitude  float64 `json:"max_change_magnitude"`
	StdChangeMagnitude  float64 `json:"std_change_magnitude"`
}

// Aggregate computes pixel counts, the change percentage over valid pixels,
// and the mean, max and population standard deviation of magnitude over
// valid pixels. With no valid pixels every derived value is 0.
func Aggregate(magnitude raster.Grid, significant, valid raster.Mask) Statistics {
	s := Statistics{
		TotalPixels:   magnitude.Len(),
		ValidPixels:   valid.Count(),
		ChangedPixels: significant.Count(),
	}
	if s.ValidPixels == 0 {
		return s
	}

	s.ChangePercentage = float64(s.ChangedPixels) / float64(s.ValidPixels) * 100
	s.SignificantChangePercentage = s.ChangePercentage

	values := make([]float64, 0, s.ValidPixels)
	for i, ok := range valid.Data {
		if ok {
			values = append(values, magnitude.Data[i])
		}
	}
	s.MeanChangeMagnitude, s.StdChangeMagnitude = stat.PopMeanStdDev(values, nil)
	s.MaxChangeMagnitude = floats.Max(values)
	return s
}
