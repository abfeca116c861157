// Command changedetect runs land-cover change detection from the command line
// and prints the result as JSON.
//
//	changedetect -before 2023.tif -after 2024.tif -aoi field.geojson -preview change.png
//	changedetect -pairs pairs.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/change-detect-mcp/internal/config"
	"github.com/ironsheep/change-detect-mcp/internal/detection"
	"github.com/ironsheep/change-detect-mcp/internal/jobs"
	"github.com/ironsheep/change-detect-mcp/internal/raster"
	"github.com/ironsheep/change-detect-mcp/internal/render"
	"github.com/ironsheep/change-detect-mcp/internal/store"
)

// Version information - set by ldflags during build
var Version = "dev"

// pair is one entry of a -pairs file.
type pair struct {
	Before string `yaml:"before"`
	After  string `yaml:"after"`
	AOI    string `yaml:"aoi"`
	AOIID  string `yaml:"aoi_id"`
	Ndvi   bool   `yaml:"ndvi"`
}

// output is the JSON printed for one detection.
type output struct {
	JobID  string `json:"job_id,omitempty"`
	Before string `json:"before"`
	After  string `json:"after"`
	*detection.Payload
	Preview string `json:"preview,omitempty"`
	Error   string `json:"error,omitempty"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "changedetect: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	before := flag.String("before", "", "Earlier raster")
	after := flag.String("after", "", "Later raster")
	aoiPath := flag.String("aoi", "", "GeoJSON Polygon file to crop both rasters to")
	aoiID := flag.String("aoi-id", "", "Identifier recorded with the run")
	ndvi := flag.Bool("ndvi", false, "Run the NDVI-only comparison")
	arrays := flag.Bool("arrays", false, "Include per-pixel arrays in the output")
	preview := flag.String("preview", "", "Write a PNG heatmap of the change to this path (single run) or directory (-pairs)")
	pairsPath := flag.String("pairs", "", "YAML file listing before/after pairs to run in parallel")
	configPath := flag.String("config", "", "YAML configuration file (default: $"+config.EnvConfig+" or built-in defaults)")
	dbPath := flag.String("db", "", "Record runs in this SQLite database")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("changedetect %s (%s raster backend)\n", Version, raster.Backend)
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if _, err := config.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	var st *store.Store
	if *dbPath != "" {
		if st, err = store.Open(*dbPath, logger); err != nil {
			return err
		}
		defer st.Close()
	}

	det := detection.New(cfg.Detection, detection.WithLogger(logger))
	runner := jobs.New(det, st, cfg.Jobs, logger)
	defer runner.Close()

	var pairs []pair
	switch {
	case *pairsPath != "":
		if pairs, err = readPairs(*pairsPath); err != nil {
			return err
		}
	case *before != "" && *after != "":
		pairs = []pair{{Before: *before, After: *after, AOI: *aoiPath, AOIID: *aoiID, Ndvi: *ndvi}}
	default:
		flag.Usage()
		return errors.New("either -before and -after or -pairs is required")
	}

	reqs := make([]jobs.Request, len(pairs))
	for i, p := range pairs {
		if reqs[i], err = p.request(); err != nil {
			return err
		}
	}

	outcomes := runner.Batch(context.Background(), reqs)

	results := make([]output, len(outcomes))
	failed := 0
	for i, o := range outcomes {
		results[i] = output{JobID: o.ID, Before: pairs[i].Before, After: pairs[i].After}
		if o.Err != nil {
			failed++
			results[i].Error = o.Err.Error()
			continue
		}
		payload := o.Analysis.Payload(*arrays)
		results[i].Payload = &payload
		if *preview != "" {
			path := previewPath(*preview, i, *pairsPath != "")
			if err := savePreview(path, o.Analysis); err != nil {
				return err
			}
			results[i].Preview = path
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if *pairsPath == "" {
		err = enc.Encode(results[0])
	} else {
		err = enc.Encode(results)
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d detections failed", failed, len(results))
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func readPairs(path string) ([]pair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pairs file: %w", err)
	}
	var pairs []pair
	if err := yaml.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("failed to parse pairs file: %w", err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("pairs file %s lists no pairs", path)
	}
	return pairs, nil
}

func (p pair) request() (jobs.Request, error) {
	req := jobs.Request{BeforePath: p.Before, AfterPath: p.After, AOIID: p.AOIID, Reduced: p.Ndvi}
	if p.AOI == "" {
		return req, nil
	}
	data, err := os.ReadFile(p.AOI)
	if err != nil {
		return req, fmt.Errorf("failed to read AOI: %w", err)
	}
	if req.AOI, err = raster.ParseGeoJSON(data); err != nil {
		return req, fmt.Errorf("%s: %w", p.AOI, err)
	}
	return req, nil
}

// previewPath returns path itself for a single run and path/change-<i>.png
// for a batch.
func previewPath(path string, i int, batch bool) string {
	if !batch {
		return path
	}
	return filepath.Join(path, fmt.Sprintf("change-%d.png", i))
}

// savePreview writes the magnitude heatmap of a full result or the NDVI
// delta of a reduced one.
func savePreview(path string, a *detection.Analysis) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create preview directory: %w", err)
	}

	var img image.Image
	if a.Mode == detection.ModeReduced {
		ramp, err := render.NewRamp(render.DeltaRamp)
		if err != nil {
			return err
		}
		img = render.Diverging(a.Reduced.Delta, 0, ramp)
	} else {
		ramp, err := render.NewRamp(render.MagnitudeRamp)
		if err != nil {
			return err
		}
		img = render.Heatmap(a.Full.Magnitude, 0, ramp)
	}
	return render.Save(path, img)
}
