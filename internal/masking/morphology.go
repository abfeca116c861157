package masking

import "github.com/ironsheep/change-detect-mcp/internal/raster"

// Offset is a (row, col) displacement within a structuring element.
type Offset struct{ DR, DC int }

// Disk returns the offsets of a disk structuring element of the given
// radius: every (dr, dc) with dr² + dc² <= radius².
func Disk(radius int) []Offset {
	var out []Offset
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			if dr*dr+dc*dc <= radius*radius {
				out = append(out, Offset{dr, dc})
			}
		}
	}
	return out
}

// Dilate returns the binary dilation of m by a disk of the given radius.
// Pixels outside the grid count as false.
func Dilate(m raster.Mask, radius int) raster.Mask {
	out := raster.NewMask(m.Rows, m.Cols)
	se := Disk(radius)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if !m.At(r, c) {
				continue
			}
			for _, o := range se {
				rr, cc := r+o.DR, c+o.DC
				if rr >= 0 && rr < m.Rows && cc >= 0 && cc < m.Cols {
					out.Set(rr, cc, true)
				}
			}
		}
	}
	return out
}

// Erode returns the binary erosion of m by a disk of the given radius.
// Pixels outside the grid count as true, so borders are not eroded away.
func Erode(m raster.Mask, radius int) raster.Mask {
	out := raster.NewMask(m.Rows, m.Cols)
	se := Disk(radius)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if !m.At(r, c) {
				continue
			}
			keep := true
			for _, o := range se {
				rr, cc := r+o.DR, c+o.DC
				if rr >= 0 && rr < m.Rows && cc >= 0 && cc < m.Cols && !m.At(rr, cc) {
					keep = false
					break
				}
			}
			out.Set(r, c, keep)
		}
	}
	return out
}

// Close returns the morphological closing of m (dilation then erosion),
// which fills gaps narrower than the disk.
func Close(m raster.Mask, radius int) raster.Mask {
	return Erode(Dilate(m, radius), radius)
}
