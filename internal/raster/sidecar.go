package raster

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// worldFileCandidates lists sidecar names checked for a raster, in order.
func worldFileCandidates(path string) []string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	e := strings.TrimPrefix(ext, ".")

	var out []string
	if len(e) >= 2 {
		out = append(out, base+"."+e[:1]+e[len(e)-1:]+"w")
	}
	if e != "" {
		out = append(out, base+"."+e+"w")
	}
	return append(out, base+".wld")
}

// readWorldFile parses the first world file found next to path.
//
// A world file holds six lines: A (pixel width), D, B (rotation terms),
// E (pixel height, negative for north-up), C and F (centre of the top-left
// pixel). The result is converted to a GDAL geotransform, whose origin is
// the top-left corner of the top-left pixel.
func readWorldFile(path string) (GeoTransform, error) {
	for _, candidate := range worldFileCandidates(path) {
		f, err := os.Open(candidate)
		if err != nil {
			continue
		}
		defer f.Close()

		var v []float64
		scanner := bufio.NewScanner(f)
		for scanner.Scan() && len(v) < 6 {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			n, err := strconv.ParseFloat(line, 64)
			if err != nil {
				return GeoTransform{}, fmt.Errorf("%w: world file %s: %w", ErrPreprocessing, candidate, err)
			}
			v = append(v, n)
		}
		if err := scanner.Err(); err != nil {
			return GeoTransform{}, fmt.Errorf("%w: world file %s: %w", ErrPreprocessing, candidate, err)
		}
		if len(v) != 6 {
			return GeoTransform{}, fmt.Errorf("%w: world file %s has %d values, need 6", ErrPreprocessing, candidate, len(v))
		}

		a, d, b, e, c, fy := v[0], v[1], v[2], v[3], v[4], v[5]
		return GeoTransform{c - a/2 - b/2, a, b, fy - d/2 - e/2, d, e}, nil
	}
	return GeoTransform{}, fmt.Errorf("%w: %s has no world file", ErrPreprocessing, path)
}

// readCRS reads the .prj sidecar next to path.
func readCRS(path string) (string, error) {
	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	data, err := os.ReadFile(prj)
	if err != nil {
		return "", fmt.Errorf("%w: %s has no coordinate reference system (%s)", ErrPreprocessing, path, filepath.Base(prj))
	}
	crs, err := ParseCRS(string(data))
	if err != nil {
		return "", fmt.Errorf("%s: %w", prj, err)
	}
	return crs, nil
}

var (
	epsgPattern    = regexp.MustCompile(`(?i)^\s*EPSG\s*:\s*(\d+)\s*$`)
	wktNamePattern = regexp.MustCompile(`^\s*([A-Z]+)\s*\[\s*"([^"]*)"`)
)

// ParseCRS normalizes a CRS definition to an identifier.
//
// "EPSG:<code>" strings are returned upper-cased. WKT describing a
// geographic WGS84 system is returned as EPSG:4326; any other WKT is
// returned as "WKT:<name>" so it compares unequal to the canonical CRS.
func ParseCRS(def string) (string, error) {
	def = strings.TrimSpace(def)
	if def == "" {
		return "", fmt.Errorf("%w: empty coordinate reference system", ErrPreprocessing)
	}
	if m := epsgPattern.FindStringSubmatch(def); m != nil {
		return "EPSG:" + m[1], nil
	}

	m := wktNamePattern.FindStringSubmatch(def)
	if m == nil {
		return "", fmt.Errorf("%w: unrecognised coordinate reference system %q", ErrPreprocessing, truncate(def, 40))
	}
	kind, name := m[1], m[2]
	switch kind {
	case "GEOGCS", "GEOGCRS", "GEODCRS":
		if isWGS84Name(name) || isWGS84Name(datumName(def)) {
			return CanonicalCRS, nil
		}
	}
	return "WKT:" + name, nil
}

func datumName(wkt string) string {
	i := strings.Index(wkt, "DATUM[")
	if i < 0 {
		return ""
	}
	rest := wkt[i+len("DATUM["):]
	rest = strings.TrimLeft(rest, " \"")
	if j := strings.IndexByte(rest, '"'); j >= 0 {
		return rest[:j]
	}
	return ""
}

func isWGS84Name(name string) bool {
	n := strings.ToUpper(strings.NewReplacer(" ", "", "_", "").Replace(name))
	return n == "WGS84" || n == "WGS1984" || n == "DWGS1984" || n == "WORLDGEODETICSYSTEM1984"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
