package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"

	"github.com/ironsheep/change-detect-mcp/internal/detection"
	"github.com/ironsheep/change-detect-mcp/internal/jobs"
	"github.com/ironsheep/change-detect-mcp/internal/masking"
	"github.com/ironsheep/change-detect-mcp/internal/raster"
	"github.com/ironsheep/change-detect-mcp/internal/render"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "change_detect", "raster_info").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Argument errors return code -32602 and all other failures -32000. The
// error data names the error class and, for detection failures, the stage.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params",
			ErrorData{Error: "InvalidParamsError", Detail: err.Error()})
	}

	result, err := s.executeTool(context.Background(), params.Name, params.Arguments)
	if err != nil {
		code, data := classifyError(err)
		message := "Tool execution failed"
		if code == codeInvalidParams {
			message = "Invalid params"
		}
		s.logger.Warn("tool call failed", "tool", params.Name, "error", err, "class", data.Error)
		return s.errorResponse(req.ID, code, message, data)
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Raster Inspection
	case "raster_info":
		return s.handleRasterInfo(args)
	case "raster_cloud_mask":
		return s.handleRasterCloudMask(args)

	// Change Detection
	case "change_detect":
		return s.handleChangeDetect(ctx, args, false)
	case "change_detect_ndvi":
		return s.handleChangeDetect(ctx, args, true)

	// Background Jobs
	case "change_detect_submit":
		return s.handleChangeDetectSubmit(ctx, args)
	case "change_detect_status":
		return s.handleChangeDetectStatus(ctx, args)
	case "change_detect_history":
		return s.handleChangeDetectHistory(ctx, args)

	// Previews
	case "change_preview":
		return s.handleChangePreview(ctx, args)

	default:
		return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments into v. Missing arguments decode as
// an empty object.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %w", errInvalidArgs, err)
	}
	return nil
}

// parseAOI returns nil for an absent or null AOI.
func parseAOI(raw json.RawMessage) (*raster.Polygon, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	return raster.ParseGeoJSON(raw)
}

func requirePath(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", errInvalidArgs, name)
	}
	return nil
}

// === Raster Inspection Handlers ===

type rasterInfoArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleRasterInfo(args json.RawMessage) (interface{}, error) {
	var a rasterInfoArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath("path", a.Path); err != nil {
		return nil, err
	}
	return s.detector.Loader().Inspect(a.Path)
}

type rasterCloudMaskArgs struct {
	Path         string          `json:"path"`
	AOI          json.RawMessage `json:"aoi"`
	IncludeMasks bool            `json:"include_masks"`
	Preview      bool            `json:"preview"`
}

// CloudMaskResult reports cloud and shadow coverage of one raster.
type CloudMaskResult struct {
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Bands        int     `json:"bands"`
	CloudPixels  int     `json:"cloud_pixels"`
	ShadowPixels int     `json:"shadow_pixels"`
	CloudCover   float64 `json:"cloud_cover_percentage"`
	ShadowCover  float64 `json:"shadow_cover_percentage"`

	// Masked is false when the raster has too few bands to be masked.
	Masked bool `json:"masked"`

	CloudMask  [][]bool       `json:"cloud_mask,omitempty"`
	ShadowMask [][]bool       `json:"shadow_mask,omitempty"`
	Preview    *render.Result `json:"preview,omitempty"`
}

func (s *Server) handleRasterCloudMask(args json.RawMessage) (interface{}, error) {
	var a rasterCloudMaskArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath("path", a.Path); err != nil {
		return nil, err
	}
	aoi, err := parseAOI(a.AOI)
	if err != nil {
		return nil, err
	}
	img, err := s.detector.Loader().Load(a.Path, aoi)
	if err != nil {
		return nil, err
	}

	cloud, shadow := s.detector.Masker().Detect(img)
	d, n := s.cfg.Detection, img.BandCount()
	res := &CloudMaskResult{
		Width:        img.Cols(),
		Height:       img.Rows(),
		Bands:        n,
		CloudPixels:  cloud.Count(),
		ShadowPixels: shadow.Count(),
		CloudCover:   masking.Coverage(cloud) * 100,
		ShadowCover:  masking.Coverage(shadow) * 100,
		Masked:       n >= masking.MinBands && d.RedBand < n && d.NIRBand < n,
	}
	if a.IncludeMasks {
		res.CloudMask = cloud.Rows2D()
		res.ShadowMask = shadow.Rows2D()
	}
	if a.Preview {
		base, err := s.composite(img)
		if err != nil {
			return nil, err
		}
		withClouds, err := render.Overlay(base, cloud, s.cfg.Render.OverlayColor, s.cfg.Render.OverlayOpacity)
		if err != nil {
			return nil, err
		}
		withShadows, err := render.Overlay(withClouds, shadow, shadowColor, s.cfg.Render.OverlayOpacity)
		if err != nil {
			return nil, err
		}
		if res.Preview, err = render.Encode(withShadows, s.cfg.Render.MaxSize); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// shadowColor tints shadow pixels in cloud previews.
const shadowColor = "#00FFFF"

// composite renders img as a colour-infrared composite (NIR, red, green as
// RGB) when the configured bands exist, as the first three bands otherwise,
// and as greyscale for single-band rasters.
func (s *Server) composite(img *raster.Image) (image.Image, error) {
	d := s.cfg.Detection
	n := img.BandCount()
	switch {
	case d.NIRBand < n && d.RedBand < n && d.GreenBand < n:
		return render.TrueColor(img, d.NIRBand, d.RedBand, d.GreenBand)
	case n >= 3:
		return render.TrueColor(img, 0, 1, 2)
	default:
		return render.TrueColor(img, 0, 0, 0)
	}
}

// === Change Detection Handlers ===

type pairArgs struct {
	BeforePath string          `json:"before_path"`
	AfterPath  string          `json:"after_path"`
	AOI        json.RawMessage `json:"aoi"`
	AOIID      string          `json:"aoi_id"`
}

func (a pairArgs) request(reduced bool) (jobs.Request, error) {
	if err := requirePath("before_path", a.BeforePath); err != nil {
		return jobs.Request{}, err
	}
	if err := requirePath("after_path", a.AfterPath); err != nil {
		return jobs.Request{}, err
	}
	aoi, err := parseAOI(a.AOI)
	if err != nil {
		return jobs.Request{}, err
	}
	return jobs.Request{
		BeforePath: a.BeforePath,
		AfterPath:  a.AfterPath,
		AOI:        aoi,
		AOIID:      a.AOIID,
		Reduced:    reduced,
	}, nil
}

type changeDetectArgs struct {
	pairArgs
	IncludeArrays bool `json:"include_arrays"`
	Preview       bool `json:"preview"`
}

// DetectResult is the response of the change_detect tools.
type DetectResult struct {
	JobID string `json:"job_id"`
	detection.Payload
	Preview *render.Result `json:"preview,omitempty"`
}

func (s *Server) handleChangeDetect(ctx context.Context, args json.RawMessage, reduced bool) (interface{}, error) {
	var a changeDetectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	req, err := a.request(reduced)
	if err != nil {
		return nil, err
	}

	id, analysis, err := s.runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	res := &DetectResult{JobID: id, Payload: analysis.Payload(a.IncludeArrays)}
	if a.Preview {
		img, err := s.previewImage(analysis, defaultKind(analysis))
		if err != nil {
			return nil, err
		}
		if res.Preview, err = render.Encode(img, s.cfg.Render.MaxSize); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// === Background Job Handlers ===

type changeDetectSubmitArgs struct {
	pairArgs
	Reduced bool `json:"reduced"`
}

func (s *Server) handleChangeDetectSubmit(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a changeDetectSubmitArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	req, err := a.request(a.Reduced)
	if err != nil {
		return nil, err
	}
	id, err := s.runner.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"job_id": id,
		"status": "queued",
	}, nil
}

type changeDetectStatusArgs struct {
	JobID         string `json:"job_id"`
	IncludeResult *bool  `json:"include_result"`
}

// StatusResult is the response of change_detect_status.
type StatusResult struct {
	*jobs.Status
	Result interface{} `json:"result,omitempty"`
}

func (s *Server) handleChangeDetectStatus(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a changeDetectStatusArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath("job_id", a.JobID); err != nil {
		return nil, err
	}
	st, err := s.runner.Status(ctx, a.JobID)
	if err != nil {
		return nil, err
	}

	res := &StatusResult{Status: st}
	if a.IncludeResult == nil || *a.IncludeResult {
		switch {
		case st.Analysis != nil:
			res.Result = st.Analysis.Payload(false)
		case len(st.StoredResult) > 0:
			res.Result = st.StoredResult
		}
	}
	return res, nil
}

type changeDetectHistoryArgs struct {
	AOIID string `json:"aoi_id"`
	Limit int    `json:"limit"`
}

func (s *Server) handleChangeDetectHistory(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a changeDetectHistoryArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath("aoi_id", a.AOIID); err != nil {
		return nil, err
	}
	if a.Limit == 0 {
		a.Limit = 20
	}
	if a.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", errInvalidArgs, a.Limit)
	}
	recs, err := s.runner.History(ctx, a.AOIID, a.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"aoi_id": a.AOIID,
		"count":  len(recs),
		"jobs":   recs,
	}, nil
}

// === Preview Handlers ===

// Preview kinds accepted by change_preview.
const (
	kindMagnitude   = "magnitude"
	kindDirection   = "direction"
	kindSignificant = "significant"
	kindNDVIDelta   = "ndvi_delta"
	kindHistogram   = "histogram"
	kindOverlay     = "overlay"
)

var previewKinds = []string{kindMagnitude, kindDirection, kindSignificant, kindNDVIDelta, kindHistogram, kindOverlay}

type changePreviewArgs struct {
	JobID     string          `json:"job_id"`
	Kind      string          `json:"kind"`
	BasePath  string          `json:"base_path"`
	AOI       json.RawMessage `json:"aoi"`
	Graticule float64         `json:"graticule"`
	MaxSize   int             `json:"max_size"`
}

// PreviewResult is the response of change_preview.
type PreviewResult struct {
	JobID string `json:"job_id"`
	Kind  string `json:"kind"`
	*render.Result
}

func (s *Server) handleChangePreview(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a changePreviewArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath("job_id", a.JobID); err != nil {
		return nil, err
	}
	if a.MaxSize == 0 {
		a.MaxSize = s.cfg.Render.MaxSize
	}
	if a.Graticule < 0 {
		return nil, fmt.Errorf("%w: graticule spacing must be positive", errInvalidArgs)
	}
	if (a.Kind == kindOverlay || a.Graticule > 0) && a.BasePath == "" {
		return nil, fmt.Errorf("%w: base_path is required for overlays and graticules", errInvalidArgs)
	}

	st, err := s.runner.Status(ctx, a.JobID)
	if err != nil {
		return nil, err
	}
	if st.Analysis == nil {
		return nil, fmt.Errorf("%w: job %s is %s and has no result held in memory", errNoResult, a.JobID, st.State)
	}
	analysis := st.Analysis
	if a.Kind == "" {
		a.Kind = defaultKind(analysis)
	}

	if a.Kind == kindHistogram {
		res, err := s.histogram(analysis)
		if err != nil {
			return nil, err
		}
		return &PreviewResult{JobID: a.JobID, Kind: a.Kind, Result: res}, nil
	}

	var base *raster.Image
	if a.BasePath != "" {
		aoi, err := parseAOI(a.AOI)
		if err != nil {
			return nil, err
		}
		if base, err = s.detector.Loader().Load(a.BasePath, aoi); err != nil {
			return nil, err
		}
	}

	var img image.Image
	if a.Kind == kindOverlay {
		img, err = s.overlay(analysis, base)
	} else {
		img, err = s.previewImage(analysis, a.Kind)
	}
	if err != nil {
		return nil, err
	}

	if a.Graticule > 0 {
		if img, err = render.Graticule(img, base.Transform, a.Graticule, true, graticuleColor); err != nil {
			return nil, err
		}
	}

	res, err := render.Encode(img, a.MaxSize)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{JobID: a.JobID, Kind: a.Kind, Result: res}, nil
}

const graticuleColor = "#FFFFFF"

func defaultKind(a *detection.Analysis) string {
	if a.Mode == detection.ModeReduced {
		return kindNDVIDelta
	}
	return kindMagnitude
}

// previewImage renders the per-pixel preview kinds.
func (s *Server) previewImage(a *detection.Analysis, kind string) (image.Image, error) {
	full := a.Mode == detection.ModeFull
	switch {
	case kind == kindMagnitude && full:
		ramp, err := render.NewRamp(render.MagnitudeRamp)
		if err != nil {
			return nil, err
		}
		return render.Heatmap(a.Full.Magnitude, 0, ramp), nil
	case kind == kindDirection && full:
		ramp, err := render.NewRamp(render.DeltaRamp)
		if err != nil {
			return nil, err
		}
		return render.Diverging(a.Full.Direction, 0, ramp), nil
	case kind == kindNDVIDelta && !full:
		ramp, err := render.NewRamp(render.DeltaRamp)
		if err != nil {
			return nil, err
		}
		return render.Diverging(a.Reduced.Delta, 0, ramp), nil
	case kind == kindSignificant:
		return render.MaskImage(changeMask(a)), nil
	}
	return nil, fmt.Errorf("%w: %q on a %s result", errWrongAnalysis, kind, a.Mode)
}

func (s *Server) overlay(a *detection.Analysis, base *raster.Image) (image.Image, error) {
	composite, err := s.composite(base)
	if err != nil {
		return nil, err
	}
	out, err := render.Overlay(composite, changeMask(a), s.cfg.Render.OverlayColor, s.cfg.Render.OverlayOpacity)
	if err != nil {
		return nil, fmt.Errorf("%w: base raster does not match the result: %w", errInvalidArgs, err)
	}
	return out, nil
}

// histogram plots change magnitudes over valid pixels, or NDVI deltas for a
// reduced result.
func (s *Server) histogram(a *detection.Analysis) (*render.Result, error) {
	if a.Mode == detection.ModeReduced {
		return render.Histogram(a.Reduced.Delta.Data, s.cfg.Render.HistogramBins, "NDVI change", "NDVI after - before")
	}
	var values []float64
	for i, v := range a.Full.Magnitude.Data {
		if a.Full.Valid.Data[i] {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: result has no valid pixels", errNoResult)
	}
	return render.Histogram(values, s.cfg.Render.HistogramBins, "Change magnitude", "magnitude")
}

func changeMask(a *detection.Analysis) raster.Mask {
	if a.Mode == detection.ModeReduced {
		return a.Reduced.ChangeMask
	}
	return a.Full.Significant
}
