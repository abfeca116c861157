package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Shared schema fragments.
var (
	pathProperty = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the raster file",
	}

	aoiProperty = map[string]interface{}{
		"type":        "object",
		"description": "Optional GeoJSON Polygon (or Feature with Polygon geometry) in lon/lat WGS84. Rasters are cropped to it and pixels outside it are zeroed.",
	}

	aoiIDProperty = map[string]interface{}{
		"type":        "string",
		"description": "Optional identifier of the area of interest. Runs with the same id are listed together by change_detect_history.",
	}

	jobIDProperty = map[string]interface{}{
		"type":        "string",
		"description": "Job id returned by a change detection tool",
	}

	pairProperties = map[string]interface{}{
		"before_path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the earlier raster",
		},
		"after_path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the later raster",
		},
		"aoi":    aoiProperty,
		"aoi_id": aoiIDProperty,
	}
)

func withProperties(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Raster Inspection
		{
			Name:        "raster_info",
			Description: "Report the dimensions, band count, CRS, geotransform and format of a raster without loading its pixels.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "raster_cloud_mask",
			Description: "Detect cloud and cloud-shadow pixels in a single raster and report their coverage. Optionally returns the masks and a colour-infrared preview with clouds highlighted.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"aoi":  aoiProperty,
					"include_masks": map[string]interface{}{
						"type":        "boolean",
						"description": "Include the per-pixel cloud and shadow masks. Default false",
					},
					"preview": map[string]interface{}{
						"type":        "boolean",
						"description": "Include a base64 PNG preview with the masks overlaid. Default false",
					},
				},
				"required": []string{"path"},
			},
		},

		// Change Detection
		{
			Name:        "change_detect",
			Description: "Compare two co-registered rasters of the same area and report where the land cover changed. Clouds and shadows are masked out before differencing. Images with too few bands fall back to an NDVI-only comparison when configured.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(pairProperties, map[string]interface{}{
					"include_arrays": map[string]interface{}{
						"type":        "boolean",
						"description": "Include per-pixel magnitude, direction, significance and validity arrays. Default false",
					},
					"preview": map[string]interface{}{
						"type":        "boolean",
						"description": "Include a base64 PNG heatmap of the change. Default false",
					},
				}),
				"required": []string{"before_path", "after_path"},
			},
		},
		{
			Name:        "change_detect_ndvi",
			Description: "Fast NDVI-only comparison of two rasters with at least two bands. No cloud masking is applied.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(pairProperties, map[string]interface{}{
					"include_arrays": map[string]interface{}{
						"type":        "boolean",
						"description": "Include the per-pixel change mask. Default false",
					},
					"preview": map[string]interface{}{
						"type":        "boolean",
						"description": "Include a base64 PNG of the NDVI delta. Default false",
					},
				}),
				"required": []string{"before_path", "after_path"},
			},
		},

		// Background Jobs
		{
			Name:        "change_detect_submit",
			Description: "Queue a change detection and return its job id immediately. Poll change_detect_status for the result.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(pairProperties, map[string]interface{}{
					"reduced": map[string]interface{}{
						"type":        "boolean",
						"description": "Run the NDVI-only comparison. Default false",
					},
				}),
				"required": []string{"before_path", "after_path"},
			},
		},
		{
			Name:        "change_detect_status",
			Description: "Get the state of a change detection job: queued, running (with the current stage), completed or failed.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job_id": jobIDProperty,
					"include_result": map[string]interface{}{
						"type":        "boolean",
						"description": "Include the result summary of a completed job. Default true",
						"default":     true,
					},
				},
				"required": []string{"job_id"},
			},
		},
		{
			Name:        "change_detect_history",
			Description: "List recent change detection jobs for an area of interest, newest first.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"aoi_id": aoiIDProperty,
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of jobs to return. Default 20",
						"default":     20,
					},
				},
				"required": []string{"aoi_id"},
			},
		},

		// Previews
		{
			Name:        "change_preview",
			Description: "Render a preview of a completed job held by this server as a base64 PNG: magnitude or direction heatmap, significant-change mask, NDVI delta, histogram of change magnitudes, or the change mask over a colour-infrared composite of a raster.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job_id": jobIDProperty,
					"kind": map[string]interface{}{
						"type":        "string",
						"enum":        previewKinds,
						"description": "What to render. Default magnitude for full results, ndvi_delta for reduced ones",
					},
					"base_path": map[string]interface{}{
						"type":        "string",
						"description": "Raster drawn under the change mask for kind=overlay, usually the before image. Also georeferences the graticule.",
					},
					"aoi": aoiProperty,
					"graticule": map[string]interface{}{
						"type":        "number",
						"description": "Draw lon/lat lines at this spacing in degrees. Needs base_path. Default 0 (none)",
					},
					"max_size": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum width and height of the preview in pixels. Default from server configuration",
					},
				},
				"required": []string{"job_id"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
