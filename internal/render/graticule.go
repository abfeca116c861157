package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"github.com/ironsheep/change-detect-mcp/internal/raster"
)

// Graticule draws lon/lat lines every spacing degrees over img, whose pixels
// are located by gt. When showLabels is set each line is labelled with its
// coordinate. An invalid colour falls back to semi-transparent red.
func Graticule(img image.Image, gt raster.GeoTransform, spacing float64, showLabels bool, lineColorHex string) (*image.RGBA, error) {
	if spacing <= 0 {
		return nil, fmt.Errorf("graticule spacing must be positive, got %f", spacing)
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	lineColor, err := parseHexColor(lineColorHex)
	if err != nil {
		lineColor = color.RGBA{255, 0, 0, 128}
	}

	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	// A pixel lies on a line when a multiple of spacing falls between its
	// left (top) edge and its right (bottom) edge.
	crosses := func(a, b float64) (float64, bool) {
		lo, hi := math.Min(a, b), math.Max(a, b)
		k := math.Ceil(lo / spacing)
		v := k * spacing
		return v, v < hi
	}

	labelColor := color.RGBA{255, 255, 255, 255}
	bgColor := color.RGBA{0, 0, 0, 180}

	// Meridians
	for x := 0; x < width; x++ {
		lon0, _ := gt.Apply(float64(x), 0)
		lon1, _ := gt.Apply(float64(x+1), 0)
		lon, ok := crosses(lon0, lon1)
		if !ok {
			continue
		}
		for y := 0; y < height; y++ {
			result.Set(bounds.Min.X+x, bounds.Min.Y+y, lineColor)
		}
		if showLabels {
			drawLabel(result, bounds.Min.X+x+2, bounds.Min.Y+2, formatDegrees(lon), labelColor, bgColor)
		}
	}

	// Parallels
	for y := 0; y < height; y++ {
		_, lat0 := gt.Apply(0, float64(y))
		_, lat1 := gt.Apply(0, float64(y+1))
		lat, ok := crosses(lat0, lat1)
		if !ok {
			continue
		}
		for x := 0; x < width; x++ {
			result.Set(bounds.Min.X+x, bounds.Min.Y+y, lineColor)
		}
		if showLabels {
			drawLabel(result, bounds.Min.X+2, bounds.Min.Y+y+2, formatDegrees(lat), labelColor, bgColor)
		}
	}

	return result, nil
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// drawLabel draws a coordinate label at the given position with a 3x5 pixel
// font covering digits, '.', '-' and ','. Other characters are skipped.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
		',': {"000", "000", "000", "010", "010"},
		'.': {"000", "000", "000", "000", "010"},
		'-': {"000", "000", "111", "000", "000"},
	}

	bounds := img.Bounds()
	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			px, py := x+dx, y+dy
			if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
				img.Set(px, py, bg)
			}
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					px, py := cx+col, y+row
					if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
						img.Set(px, py, fg)
					}
				}
			}
		}
		cx += charWidth
	}
}
