package raster

import (
	"encoding/json"
	"fmt"
	"math"
)

// Point is a longitude/latitude pair.
type Point struct {
	X float64 `json:"x"` // Longitude
	Y float64 `json:"y"` // Latitude
}

// Polygon is a simple polygon given by its exterior ring in WGS84.
//
// The ring is stored open: the closing vertex that GeoJSON repeats is dropped.
type Polygon struct {
	Ring []Point `json:"ring"`
}

// Bounds is an axis-aligned bounding box in world coordinates.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Intersects reports whether two boxes overlap.
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinX < o.MaxX && o.MinX < b.MaxX && b.MinY < o.MaxY && o.MinY < b.MaxY
}

type geoJSON struct {
	Type        string           `json:"type"`
	Coordinates [][][]float64    `json:"coordinates"`
	Geometry    *json.RawMessage `json:"geometry"`
}

// ParseGeoJSON decodes a GeoJSON Polygon geometry, or a Feature wrapping one,
// and validates it.
func ParseGeoJSON(data []byte) (*Polygon, error) {
	var g geoJSON
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAOI, err)
	}
	if g.Type == "Feature" {
		if g.Geometry == nil {
			return nil, fmt.Errorf("%w: feature has no geometry", ErrInvalidAOI)
		}
		return ParseGeoJSON(*g.Geometry)
	}
	if g.Type != "Polygon" {
		return nil, fmt.Errorf("%w: geometry type %q is not Polygon", ErrInvalidAOI, g.Type)
	}
	if len(g.Coordinates) != 1 {
		return nil, fmt.Errorf("%w: polygon must have exactly one ring, got %d", ErrInvalidAOI, len(g.Coordinates))
	}

	ring := make([]Point, 0, len(g.Coordinates[0]))
	for i, c := range g.Coordinates[0] {
		if len(c) < 2 {
			return nil, fmt.Errorf("%w: position %d has %d coordinates", ErrInvalidAOI, i, len(c))
		}
		ring = append(ring, Point{X: c[0], Y: c[1]})
	}
	p := NewPolygon(ring)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewPolygon builds a polygon from a ring, dropping a repeated closing vertex.
func NewPolygon(ring []Point) *Polygon {
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		ring = ring[:n-1]
	}
	out := make([]Point, len(ring))
	copy(out, ring)
	return &Polygon{Ring: out}
}

// Validate checks the ring has at least three vertices, lies within
// longitude/latitude limits, encloses a non-zero area and does not
// intersect itself.
func (p *Polygon) Validate() error {
	n := len(p.Ring)
	if n < 3 {
		return fmt.Errorf("%w: ring has %d distinct vertices, need at least 3", ErrInvalidAOI, n)
	}
	for i, pt := range p.Ring {
		if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || pt.X < -180 || pt.X > 180 || pt.Y < -90 || pt.Y > 90 {
			return fmt.Errorf("%w: vertex %d (%g, %g) outside WGS84 limits", ErrInvalidAOI, i, pt.X, pt.Y)
		}
	}
	if p.area() == 0 {
		return fmt.Errorf("%w: ring encloses no area", ErrInvalidAOI)
	}
	for i := 0; i < n; i++ {
		a1, a2 := p.Ring[i], p.Ring[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// Adjacent edges share a vertex by construction.
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := p.Ring[j], p.Ring[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return fmt.Errorf("%w: edges %d and %d intersect", ErrInvalidAOI, i, j)
			}
		}
	}
	return nil
}

// Bounds returns the ring's bounding box.
func (p *Polygon) Bounds() Bounds {
	b := Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, pt := range p.Ring {
		b.MinX = math.Min(b.MinX, pt.X)
		b.MinY = math.Min(b.MinY, pt.Y)
		b.MaxX = math.Max(b.MaxX, pt.X)
		b.MaxY = math.Max(b.MaxY, pt.Y)
	}
	return b
}

// Contains reports whether (x, y) lies inside the ring (even-odd rule).
func (p *Polygon) Contains(x, y float64) bool {
	inside := false
	n := len(p.Ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := p.Ring[i], p.Ring[j]
		if (pi.Y > y) != (pj.Y > y) {
			xCross := (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if x < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

func (p *Polygon) area() float64 {
	var sum float64
	n := len(p.Ring)
	for i := 0; i < n; i++ {
		a, b := p.Ring[i], p.Ring[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(sum) / 2
}

func orientation(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func onSegment(a, b, c Point) bool {
	return math.Min(a.X, b.X) <= c.X && c.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= c.Y && c.Y <= math.Max(a.Y, b.Y)
}

func segmentsIntersect(p1, p2, q1, q2 Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}
