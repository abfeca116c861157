package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/ironsheep/change-detect-mcp/internal/config"
	"github.com/ironsheep/change-detect-mcp/internal/detection"
	"github.com/ironsheep/change-detect-mcp/internal/jobs"
	"github.com/ironsheep/change-detect-mcp/internal/raster"
	"github.com/ironsheep/change-detect-mcp/internal/render"
	"github.com/ironsheep/change-detect-mcp/internal/store"
)

// memLoader serves in-memory images by path.
type memLoader map[string]*raster.Image

func (m memLoader) Load(path string, aoi *raster.Polygon) (*raster.Image, error) {
	img, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("%w: cannot open %s", raster.ErrPreprocessing, path)
	}
	return raster.Crop(img, aoi)
}

func (m memLoader) Inspect(path string) (*raster.Info, error) {
	img, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("%w: cannot open %s", raster.ErrPreprocessing, path)
	}
	return &raster.Info{
		Width:         img.Cols(),
		Height:        img.Rows(),
		Bands:         img.BandCount(),
		CRS:           img.CRS,
		Transform:     img.Transform,
		Georeferenced: true,
		Format:        "memory",
	}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testTransform places a 20x20 raster over lon 0..20, lat 0..20.
var testTransform = raster.GeoTransform{0, 1, 0, 20, 0, -1}

func uniform(t *testing.T, rows, cols int, values ...float64) *raster.Image {
	t.Helper()
	bands := make([]raster.Grid, len(values))
	for i, v := range values {
		bands[i] = raster.NewGrid(rows, cols)
		bands[i].Fill(v)
	}
	img, err := raster.NewImage(bands, raster.CanonicalCRS, testTransform, 0)
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	return img
}

// testImages returns:
//   - before.tif/after.tif: vegetation whose left half lost NIR (50% change)
//   - cloudy.tif: vegetation under a bright band across the top five rows
//   - white.tif: cloud everywhere
//   - twoband.tif: red and NIR only
//   - small.tif: a 10x10 raster
func testImages(t *testing.T) memLoader {
	t.Helper()
	before := uniform(t, 20, 20, 0.1, 0.2, 0.5)
	after := uniform(t, 20, 20, 0.1, 0.2, 0.5)
	for r := 0; r < 20; r++ {
		for c := 0; c < 10; c++ {
			after.Bands[2].Set(r, c, 0.2)
		}
	}
	cloudy := uniform(t, 20, 20, 0.1, 0.2, 0.5)
	for _, b := range cloudy.Bands {
		for r := 0; r < 5; r++ {
			for c := 0; c < 20; c++ {
				b.Set(r, c, 0.9)
			}
		}
	}
	return memLoader{
		"before.tif":  before,
		"after.tif":   after,
		"cloudy.tif":  cloudy,
		"white.tif":   uniform(t, 20, 20, 0.9, 0.9, 0.9),
		"twoband.tif": uniform(t, 20, 20, 0.1, 0.5),
		"small.tif":   uniform(t, 10, 10, 0.1, 0.2, 0.5),
	}
}

func newTestServer(t *testing.T, persistent bool) *Server {
	t.Helper()
	cfg := config.Default()
	det := detection.New(cfg.Detection,
		detection.WithLoader(testImages(t)), detection.WithLogger(quietLogger()))

	var st *store.Store
	if persistent {
		var err error
		st, err = store.Open(":memory:", quietLogger())
		if err != nil {
			t.Fatalf("store.Open failed: %v", err)
		}
		t.Cleanup(func() { st.Close() })
	}
	runner := jobs.New(det, st, config.Jobs{Workers: 2}, quietLogger())
	t.Cleanup(runner.Close)
	return New(*cfg, det, runner, quietLogger(), "test")
}

func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()
	params, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		t.Fatalf("failed to marshal params: %v", err)
	}
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// callToolOK calls a tool, expects success and decodes its text content into v.
func callToolOK(t *testing.T, s *Server, name string, args map[string]interface{}, v interface{}) {
	t.Helper()
	resp := callTool(t, s, name, args)
	if resp.Error != nil {
		t.Fatalf("%s: unexpected error: %+v", name, resp.Error)
	}
	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	if len(content) != 1 || content[0]["type"] != "text" {
		t.Fatalf("%s: unexpected content: %v", name, content)
	}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), v); err != nil {
		t.Fatalf("%s: result is not JSON: %v", name, err)
	}
}

// callToolErr calls a tool and expects an error with the given code and class.
func callToolErr(t *testing.T, s *Server, name string, args map[string]interface{}, code int, class string) ErrorData {
	t.Helper()
	resp := callTool(t, s, name, args)
	if resp.Error == nil {
		t.Fatalf("%s: expected error, got result", name)
	}
	if resp.Error.Code != code {
		t.Errorf("%s: code %d, want %d", name, resp.Error.Code, code)
	}
	data, ok := resp.Error.Data.(ErrorData)
	if !ok {
		t.Fatalf("%s: error data is %T, want ErrorData", name, resp.Error.Data)
	}
	if data.Error != class {
		t.Errorf("%s: error class %q, want %q (%s)", name, data.Error, class, data.Detail)
	}
	return data
}

func checkPNG(t *testing.T, r *render.Result) {
	t.Helper()
	if r == nil {
		t.Fatal("missing preview")
	}
	if r.MimeType != "image/png" {
		t.Errorf("mime type: got %s", r.MimeType)
	}
	raw, err := base64.StdEncoding.DecodeString(r.ImageBase64)
	if err != nil {
		t.Fatalf("preview is not base64: %v", err)
	}
	img, err := png.Decode(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("preview is not PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != r.Width || b.Dy() != r.Height {
		t.Errorf("preview is %dx%d, reported %dx%d", b.Dx(), b.Dy(), r.Width, r.Height)
	}
}

// === Raster Inspection ===

func TestHandleRasterInfo(t *testing.T) {
	s := newTestServer(t, false)

	var info raster.Info
	callToolOK(t, s, "raster_info", map[string]interface{}{"path": "before.tif"}, &info)
	if info.Width != 20 || info.Height != 20 || info.Bands != 3 {
		t.Errorf("unexpected info: %+v", info)
	}

	callToolErr(t, s, "raster_info", map[string]interface{}{}, codeInvalidParams, "InvalidArgumentsError")
	data := callToolErr(t, s, "raster_info", map[string]interface{}{"path": "nope.tif"}, codeToolFailed, "PreprocessingError")
	if data.Stage != "" {
		t.Errorf("raster_info failures carry no stage, got %q", data.Stage)
	}
}

func TestHandleRasterCloudMask(t *testing.T) {
	s := newTestServer(t, false)

	var res CloudMaskResult
	callToolOK(t, s, "raster_cloud_mask", map[string]interface{}{
		"path":          "cloudy.tif",
		"include_masks": true,
		"preview":       true,
	}, &res)

	if !res.Masked {
		t.Error("a 3-band raster should be masked")
	}
	if res.CloudPixels < 100 || res.CloudPixels >= 400 {
		t.Errorf("cloud pixels: got %d, want the top band of 100 or a little more", res.CloudPixels)
	}
	if math.Abs(res.CloudCover-float64(res.CloudPixels)/4) > 1e-9 {
		t.Errorf("cloud cover %v does not match %d of 400 pixels", res.CloudCover, res.CloudPixels)
	}
	if len(res.CloudMask) != 20 || len(res.CloudMask[0]) != 20 || !res.CloudMask[0][0] {
		t.Error("cloud mask should be 20x20 with the top row cloudy")
	}
	checkPNG(t, res.Preview)

	var two CloudMaskResult
	callToolOK(t, s, "raster_cloud_mask", map[string]interface{}{"path": "twoband.tif"}, &two)
	if two.Masked || two.CloudPixels != 0 {
		t.Errorf("a 2-band raster cannot be masked: %+v", two)
	}
}

// === Change Detection ===

func TestHandleChangeDetect(t *testing.T) {
	s := newTestServer(t, true)

	var res struct {
		JobID string `json:"job_id"`
		detection.Payload
		Preview *render.Result `json:"preview"`
	}
	callToolOK(t, s, "change_detect", map[string]interface{}{
		"before_path":    "before.tif",
		"after_path":     "after.tif",
		"include_arrays": true,
		"preview":        true,
	}, &res)

	if res.JobID == "" {
		t.Error("missing job id")
	}
	if res.Mode != detection.ModeFull {
		t.Errorf("mode: got %s", res.Mode)
	}
	if res.Statistics == nil || math.Abs(res.Statistics.ChangePercentage-50) > 1e-9 {
		t.Errorf("unexpected statistics: %+v", res.Statistics)
	}
	if res.Metadata == nil || res.Metadata.Algorithm != "multi-spectral_change_detection" {
		t.Errorf("unexpected metadata: %+v", res.Metadata)
	}
	if len(res.ChangeMagnitude) != 20 || len(res.ValidPixels) != 20 {
		t.Error("include_arrays should return 20-row arrays")
	}
	checkPNG(t, res.Preview)
}

func TestHandleChangeDetect_WithoutArrays(t *testing.T) {
	s := newTestServer(t, false)

	var res map[string]interface{}
	callToolOK(t, s, "change_detect", map[string]interface{}{
		"before_path": "before.tif",
		"after_path":  "after.tif",
	}, &res)
	for _, key := range []string{"change_magnitude", "valid_pixels", "preview"} {
		if _, ok := res[key]; ok {
			t.Errorf("%s should be omitted by default", key)
		}
	}
	for _, key := range []string{"statistics", "change_types", "metadata"} {
		if _, ok := res[key]; !ok {
			t.Errorf("%s missing", key)
		}
	}
}

func TestHandleChangeDetect_AOI(t *testing.T) {
	s := newTestServer(t, false)
	aoi := map[string]interface{}{
		"type":        "Polygon",
		"coordinates": [][][]float64{{{0, 0}, {10, 0}, {10, 20}, {0, 20}, {0, 0}}},
	}

	var res DetectResult
	callToolOK(t, s, "change_detect", map[string]interface{}{
		"before_path": "before.tif",
		"after_path":  "after.tif",
		"aoi":         aoi,
	}, &res)
	if res.Statistics.TotalPixels != 200 {
		t.Errorf("cropped total: got %d, want 200", res.Statistics.TotalPixels)
	}
	if res.Statistics.ChangePercentage != 100 {
		t.Errorf("cropped change: got %v, want 100", res.Statistics.ChangePercentage)
	}
}

func TestHandleChangeDetect_Insufficient(t *testing.T) {
	s := newTestServer(t, false)

	var res DetectResult
	callToolOK(t, s, "change_detect", map[string]interface{}{
		"before_path": "white.tif",
		"after_path":  "white.tif",
	}, &res)
	if res.Metadata == nil || res.Metadata.Error != "insufficient_valid_pixels" {
		t.Errorf("expected insufficient-data flag, got %+v", res.Metadata)
	}
	if res.Statistics == nil || res.Statistics.ValidPixels != 0 || res.Statistics.TotalPixels != 0 {
		t.Errorf("unexpected statistics: %+v", res.Statistics)
	}
}

func TestHandleChangeDetect_Fallback(t *testing.T) {
	s := newTestServer(t, false)

	var res DetectResult
	callToolOK(t, s, "change_detect", map[string]interface{}{
		"before_path": "twoband.tif",
		"after_path":  "twoband.tif",
	}, &res)
	if res.Mode != detection.ModeReduced || res.Reduced == nil {
		t.Fatalf("expected reduced fallback, got mode %s", res.Mode)
	}
	if res.Reduced.ChangedPixels != 0 {
		t.Errorf("identical images changed %d pixels", res.Reduced.ChangedPixels)
	}
}

func TestHandleChangeDetectNDVI(t *testing.T) {
	s := newTestServer(t, false)

	var res DetectResult
	callToolOK(t, s, "change_detect_ndvi", map[string]interface{}{
		"before_path":    "before.tif",
		"after_path":     "after.tif",
		"include_arrays": true,
		"preview":        true,
	}, &res)
	if res.Mode != detection.ModeReduced || res.Reduced == nil {
		t.Fatalf("expected reduced analysis, got %s", res.Mode)
	}
	if res.Reduced.Algorithm != detection.ReducedAlgorithm {
		t.Errorf("algorithm: got %s", res.Reduced.Algorithm)
	}
	// NDVI drops from 0.67 to 0.33 over the left half.
	if res.Reduced.ChangePercentage != 50 {
		t.Errorf("change percentage: got %f, want 50", res.Reduced.ChangePercentage)
	}
	if len(res.ChangeMask) != 20 {
		t.Errorf("change mask rows: got %d", len(res.ChangeMask))
	}
	checkPNG(t, res.Preview)
}

func TestHandleChangeDetect_Errors(t *testing.T) {
	s := newTestServer(t, false)

	tests := []struct {
		name  string
		args  map[string]interface{}
		code  int
		class string
		stage string
	}{
		{
			name:  "missing after path",
			args:  map[string]interface{}{"before_path": "before.tif"},
			code:  codeInvalidParams,
			class: "InvalidArgumentsError",
		},
		{
			name:  "wrong argument type",
			args:  map[string]interface{}{"before_path": 3, "after_path": "after.tif"},
			code:  codeInvalidParams,
			class: "InvalidArgumentsError",
		},
		{
			name: "bad aoi",
			args: map[string]interface{}{
				"before_path": "before.tif",
				"after_path":  "after.tif",
				"aoi":         map[string]interface{}{"type": "Point", "coordinates": []float64{1, 2}},
			},
			code:  codeInvalidParams,
			class: "InvalidAOIError",
		},
		{
			name: "aoi outside raster",
			args: map[string]interface{}{
				"before_path": "before.tif",
				"after_path":  "after.tif",
				"aoi": map[string]interface{}{
					"type":        "Polygon",
					"coordinates": [][][]float64{{{50, 50}, {60, 50}, {60, 60}, {50, 60}, {50, 50}}},
				},
			},
			code:  codeToolFailed,
			class: "PreprocessingError",
			stage: "loading",
		},
		{
			name:  "missing file",
			args:  map[string]interface{}{"before_path": "before.tif", "after_path": "nope.tif"},
			code:  codeToolFailed,
			class: "PreprocessingError",
			stage: "loading",
		},
		{
			name:  "dimension mismatch",
			args:  map[string]interface{}{"before_path": "before.tif", "after_path": "small.tif"},
			code:  codeToolFailed,
			class: "DimensionMismatchError",
			stage: "loading",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := callToolErr(t, s, "change_detect", tt.args, tt.code, tt.class)
			if data.Stage != tt.stage {
				t.Errorf("stage: got %q, want %q", data.Stage, tt.stage)
			}
		})
	}
}

// === Background Jobs ===

func TestHandleChangeDetectSubmitStatus(t *testing.T) {
	s := newTestServer(t, true)

	var sub map[string]string
	callToolOK(t, s, "change_detect_submit", map[string]interface{}{
		"before_path": "before.tif",
		"after_path":  "after.tif",
		"aoi_id":      "field-7",
	}, &sub)
	if sub["job_id"] == "" || sub["status"] != "queued" {
		t.Fatalf("unexpected submit response: %v", sub)
	}

	s.runner.Close()

	var st struct {
		ID     string           `json:"id"`
		Status string           `json:"status"`
		Stage  string           `json:"stage"`
		AOIID  string           `json:"aoi_id"`
		Result detection.Payload `json:"result"`
	}
	callToolOK(t, s, "change_detect_status", map[string]interface{}{"job_id": sub["job_id"]}, &st)
	if st.ID != sub["job_id"] || st.Status != "completed" || st.Stage != "done" || st.AOIID != "field-7" {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.Result.Statistics == nil || math.Abs(st.Result.Statistics.ChangePercentage-50) > 1e-9 {
		t.Errorf("unexpected result: %+v", st.Result.Statistics)
	}

	var bare map[string]interface{}
	callToolOK(t, s, "change_detect_status", map[string]interface{}{
		"job_id":         sub["job_id"],
		"include_result": false,
	}, &bare)
	if _, ok := bare["result"]; ok {
		t.Error("include_result=false should omit the result")
	}
}

func TestHandleChangeDetectStatus_Errors(t *testing.T) {
	s := newTestServer(t, false)
	callToolErr(t, s, "change_detect_status", map[string]interface{}{}, codeInvalidParams, "InvalidArgumentsError")
	callToolErr(t, s, "change_detect_status", map[string]interface{}{"job_id": "nope"}, codeInvalidParams, "JobNotFoundError")
}

func TestHandleChangeDetectSubmit_Closed(t *testing.T) {
	s := newTestServer(t, false)
	s.runner.Close()
	callToolErr(t, s, "change_detect_submit", map[string]interface{}{
		"before_path": "before.tif",
		"after_path":  "after.tif",
	}, codeToolFailed, "UnavailableError")
}

func TestHandleChangeDetectHistory(t *testing.T) {
	s := newTestServer(t, true)
	for _, aoiID := range []string{"field-7", "field-7", "field-8"} {
		var res DetectResult
		callToolOK(t, s, "change_detect", map[string]interface{}{
			"before_path": "before.tif",
			"after_path":  "after.tif",
			"aoi_id":      aoiID,
		}, &res)
	}

	var hist struct {
		AOIID string         `json:"aoi_id"`
		Count int            `json:"count"`
		Jobs  []store.Record `json:"jobs"`
	}
	callToolOK(t, s, "change_detect_history", map[string]interface{}{"aoi_id": "field-7"}, &hist)
	if hist.Count != 2 || len(hist.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", hist.Count)
	}
	for _, rec := range hist.Jobs {
		if rec.Status != store.StatusCompleted || rec.ChangePercentage == nil {
			t.Errorf("unexpected record: %+v", rec)
		}
	}

	callToolOK(t, s, "change_detect_history", map[string]interface{}{"aoi_id": "field-7", "limit": 1}, &hist)
	if hist.Count != 1 {
		t.Errorf("limit 1: got %d jobs", hist.Count)
	}

	callToolErr(t, s, "change_detect_history", map[string]interface{}{"aoi_id": "field-7", "limit": -1},
		codeInvalidParams, "InvalidArgumentsError")
	callToolErr(t, newTestServer(t, false), "change_detect_history", map[string]interface{}{"aoi_id": "field-7"},
		codeToolFailed, "UnavailableError")
}

// === Previews ===

func TestHandleChangePreview(t *testing.T) {
	s := newTestServer(t, false)

	var full DetectResult
	callToolOK(t, s, "change_detect", map[string]interface{}{
		"before_path": "before.tif",
		"after_path":  "after.tif",
	}, &full)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"default kind", map[string]interface{}{}, kindMagnitude},
		{"direction", map[string]interface{}{"kind": kindDirection}, kindDirection},
		{"significant", map[string]interface{}{"kind": kindSignificant}, kindSignificant},
		{"histogram", map[string]interface{}{"kind": kindHistogram}, kindHistogram},
		{"overlay", map[string]interface{}{"kind": kindOverlay, "base_path": "before.tif"}, kindOverlay},
		{"graticule", map[string]interface{}{"base_path": "before.tif", "graticule": 5}, kindMagnitude},
		{"max size", map[string]interface{}{"max_size": 10}, kindMagnitude},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.args["job_id"] = full.JobID
			var res struct {
				JobID string `json:"job_id"`
				Kind  string `json:"kind"`
				render.Result
			}
			callToolOK(t, s, "change_preview", tt.args, &res)
			if res.Kind != tt.want || res.JobID != full.JobID {
				t.Errorf("got kind %s for job %s", res.Kind, res.JobID)
			}
			checkPNG(t, &res.Result)
			if tt.name == "max size" && (res.Width > 10 || res.Height > 10) {
				t.Errorf("max_size ignored: %dx%d", res.Width, res.Height)
			}
		})
	}
}

func TestHandleChangePreview_Reduced(t *testing.T) {
	s := newTestServer(t, false)

	var res DetectResult
	callToolOK(t, s, "change_detect_ndvi", map[string]interface{}{
		"before_path": "before.tif",
		"after_path":  "after.tif",
	}, &res)

	var preview PreviewResult
	callToolOK(t, s, "change_preview", map[string]interface{}{"job_id": res.JobID}, &preview)
	if preview.Kind != kindNDVIDelta {
		t.Errorf("default kind for reduced results: got %s", preview.Kind)
	}

	callToolErr(t, s, "change_preview", map[string]interface{}{"job_id": res.JobID, "kind": kindMagnitude},
		codeInvalidParams, "InvalidArgumentsError")
}

func TestHandleChangePreview_Errors(t *testing.T) {
	s := newTestServer(t, false)

	var full DetectResult
	callToolOK(t, s, "change_detect", map[string]interface{}{
		"before_path": "before.tif",
		"after_path":  "after.tif",
	}, &full)

	tests := []struct {
		name  string
		args  map[string]interface{}
		code  int
		class string
	}{
		{"unknown job", map[string]interface{}{"job_id": "nope"}, codeInvalidParams, "JobNotFoundError"},
		{"overlay without base", map[string]interface{}{"job_id": full.JobID, "kind": kindOverlay}, codeInvalidParams, "InvalidArgumentsError"},
		{"graticule without base", map[string]interface{}{"job_id": full.JobID, "graticule": 1}, codeInvalidParams, "InvalidArgumentsError"},
		{"ndvi delta on full", map[string]interface{}{"job_id": full.JobID, "kind": kindNDVIDelta}, codeInvalidParams, "InvalidArgumentsError"},
		{"unknown kind", map[string]interface{}{"job_id": full.JobID, "kind": "sepia"}, codeInvalidParams, "InvalidArgumentsError"},
		{"mismatched base", map[string]interface{}{"job_id": full.JobID, "kind": kindOverlay, "base_path": "small.tif"}, codeInvalidParams, "InvalidArgumentsError"},
		{"missing base", map[string]interface{}{"job_id": full.JobID, "kind": kindOverlay, "base_path": "nope.tif"}, codeToolFailed, "PreprocessingError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callToolErr(t, s, "change_preview", tt.args, tt.code, tt.class)
		})
	}
}

func TestHandleChangePreview_FailedJob(t *testing.T) {
	s := newTestServer(t, false)
	resp := callTool(t, s, "change_detect", map[string]interface{}{
		"before_path": "before.tif",
		"after_path":  "nope.tif",
	})
	if resp.Error == nil {
		t.Fatal("expected the detection to fail")
	}

	// The failed job id is only reachable through the runner.
	id, _, err := s.runner.Run(t.Context(), jobs.Request{BeforePath: "before.tif", AfterPath: "nope.tif"})
	if err == nil {
		t.Fatal("expected run to fail")
	}
	callToolErr(t, s, "change_preview", map[string]interface{}{"job_id": id}, codeToolFailed, "ResultUnavailableError")
}

// === Dispatch and Error Mapping ===

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t, false)
	callToolErr(t, s, "image_load", map[string]interface{}{"path": "x"}, codeInvalidParams, "UnknownToolError")
}

func TestHandleToolsCall_BadParams(t *testing.T) {
	s := newTestServer(t, false)
	resp := s.handleRequest(&MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Errorf("expected invalid params, got %+v", resp.Error)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err   error
		code  int
		class string
		stage string
	}{
		{fmt.Errorf("%w: x", errInvalidArgs), codeInvalidParams, "InvalidArgumentsError", ""},
		{fmt.Errorf("%w: bad ring", detection.ErrInvalidAOI), codeInvalidParams, "InvalidAOIError", ""},
		{fmt.Errorf("%w: x", jobs.ErrNotFound), codeInvalidParams, "JobNotFoundError", ""},
		{&detection.StageError{Stage: detection.StageLoading, Err: detection.ErrBandCount}, codeToolFailed, "BandCountError", "loading"},
		{&detection.StageError{Stage: detection.StageMasking, Err: errors.New("boom")}, codeToolFailed, "ToolError", "masking"},
		{fmt.Errorf("%w after 1s", jobs.ErrTimeout), codeToolFailed, "TimeoutError", ""},
		{errors.New("other"), codeToolFailed, "ToolError", ""},
	}

	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			code, data := classifyError(tt.err)
			if code != tt.code || data.Error != tt.class || data.Stage != tt.stage {
				t.Errorf("classifyError(%v) = %d %+v, want %d %s %q", tt.err, code, data, tt.code, tt.class, tt.stage)
			}
			if data.Detail != tt.err.Error() {
				t.Errorf("detail: got %q", data.Detail)
			}
		})
	}
}
