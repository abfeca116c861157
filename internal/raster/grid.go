package raster

import "fmt"

// Grid is a row-major 2-D array of float64 values.
type Grid struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"-"`
}

// NewGrid allocates a zero-filled grid.
func NewGrid(rows, cols int) Grid {
	return Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// Len returns the number of cells.
func (g Grid) Len() int { return g.Rows * g.Cols }

// At returns the value at (row, col).
func (g Grid) At(row, col int) float64 { return g.Data[row*g.Cols+col] }

// Set stores v at (row, col).
func (g Grid) Set(row, col int, v float64) { g.Data[row*g.Cols+col] = v }

// Fill sets every cell to v.
func (g Grid) Fill(v float64) {
	for i := range g.Data {
		g.Data[i] = v
	}
}

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	out := Grid{Rows: g.Rows, Cols: g.Cols, Data: make([]float64, len(g.Data))}
	copy(out.Data, g.Data)
	return out
}

// SameShape reports whether two grids have identical dimensions.
func (g Grid) SameShape(o Grid) bool { return g.Rows == o.Rows && g.Cols == o.Cols }

// Max returns the largest value, or 0 for an empty grid.
func (g Grid) Max() float64 {
	if len(g.Data) == 0 {
		return 0
	}
	m := g.Data[0]
	for _, v := range g.Data[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Rows2D returns the grid as nested row slices for JSON payloads.
func (g Grid) Rows2D() [][]float64 {
	out := make([][]float64, g.Rows)
	for r := 0; r < g.Rows; r++ {
		out[r] = g.Data[r*g.Cols : (r+1)*g.Cols : (r+1)*g.Cols]
	}
	return out
}

// Mask is a row-major 2-D array of booleans matching a Grid's dimensions.
type Mask struct {
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
	Data []bool `json:"-"`
}

// NewMask allocates an all-false mask.
func NewMask(rows, cols int) Mask {
	return Mask{Rows: rows, Cols: cols, Data: make([]bool, rows*cols)}
}

// MaskLike allocates an all-false mask with the dimensions of g.
func MaskLike(g Grid) Mask { return NewMask(g.Rows, g.Cols) }

// Len returns the number of cells.
func (m Mask) Len() int { return m.Rows * m.Cols }

// At returns the value at (row, col).
func (m Mask) At(row, col int) bool { return m.Data[row*m.Cols+col] }

// Set stores v at (row, col).
func (m Mask) Set(row, col int, v bool) { m.Data[row*m.Cols+col] = v }

// Count returns the number of true cells.
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (m Mask) Clone() Mask {
	out := Mask{Rows: m.Rows, Cols: m.Cols, Data: make([]bool, len(m.Data))}
	copy(out.Data, m.Data)
	return out
}

// Matches reports whether the mask has the dimensions of g.
func (m Mask) Matches(g Grid) bool { return m.Rows == g.Rows && m.Cols == g.Cols }

// Or returns the cell-wise union of two masks.
func (m Mask) Or(o Mask) (Mask, error) {
	if m.Rows != o.Rows || m.Cols != o.Cols {
		return Mask{}, fmt.Errorf("%w: mask %dx%d vs %dx%d", ErrDimensionMismatch, m.Rows, m.Cols, o.Rows, o.Cols)
	}
	out := NewMask(m.Rows, m.Cols)
	for i := range m.Data {
		out.Data[i] = m.Data[i] || o.Data[i]
	}
	return out, nil
}

// Not returns the cell-wise complement.
func (m Mask) Not() Mask {
	out := NewMask(m.Rows, m.Cols)
	for i, v := range m.Data {
		out.Data[i] = !v
	}
	return out
}

// Rows2D returns the mask as nested row slices for JSON payloads.
func (m Mask) Rows2D() [][]bool {
	out := make([][]bool, m.Rows)
	for r := 0; r < m.Rows; r++ {
		out[r] = m.Data[r*m.Cols : (r+1)*m.Cols : (r+1)*m.Cols]
	}
	return out
}
