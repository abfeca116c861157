package detection

import "github.com/ironsheep/change-detect-mcp/internal/change"

// Mode tags the analysis that produced a result.
type Mode string

// Analysis modes.
const (
	ModeFull    Mode = "full"
	ModeReduced Mode = "reduced"
)

// Analysis is the outcome of a run. Exactly one of Full and Reduced is set,
// matching Mode.
type Analysis struct {
	Mode    Mode
	Full    *change.Result
	Reduced *NDVIResult
}

// ChangePercentage returns the headline change percentage of either mode.
func (a *Analysis) ChangePercentage() float64 {
	if a.Mode == ModeReduced {
		return a.Reduced.ChangePercentage
	}
	return a.Full.Statistics.ChangePercentage
}

// Insufficient reports whether a full analysis ended with too few valid
// pixels.
func (a *Analysis) Insufficient() bool {
	return a.Mode == ModeFull && a.Full.IsInsufficient()
}

// Payload is the serializable form of an Analysis.
type Payload struct {
	Mode        Mode               `json:"mode"`
	Statistics  *change.Statistics `json:"statistics,omitempty"`
	ChangeTypes change.Tally       `json:"change_types,omitempty"`
	Metadata    *change.Metadata   `json:"metadata,omitempty"`
	Reduced     *NDVIResult        `json:"reduced,omitempty"`

	ChangeMagnitude    [][]float64 `json:"change_magnitude,omitempty"`
	ChangeDirection    [][]float64 `json:"change_direction,omitempty"`
	SignificantChanges [][]bool    `json:"significant_changes,omitempty"`
	ValidPixels        [][]bool    `json:"valid_pixels,omitempty"`
	ChangeMask         [][]bool    `json:"change_mask,omitempty"`
}

// Payload converts a to its serializable form. Per-pixel arrays are included
// only when withArrays is set; they dominate the size of the payload.
func (a *Analysis) Payload(withArrays bool) Payload {
	p := Payload{Mode: a.Mode}
	if a.Mode == ModeReduced {
		p.Reduced = a.Reduced
		if withArrays {
			p.ChangeMask = a.Reduced.ChangeMask.Rows2D()
		}
		return p
	}

	r := a.Full
	stats := r.Statistics
	meta := r.Metadata
	p.Statistics = &stats
	p.ChangeTypes = r.Tally
	p.Metadata = &meta
	if withArrays {
		p.ChangeMagnitude = r.Magnitude.Rows2D()
		p.ChangeDirection = r.Direction.Rows2D()
		p.SignificantChanges = r.Significant.Rows2D()
		p.ValidPixels = r.Valid.Rows2D()
	}
	return p
}
