// Package server implements the MCP (Model Context Protocol) server for land-cover
// change detection.
//
// This package provides a JSON-RPC 2.0 server that exposes the detection pipeline
// through the MCP protocol, so MCP-compatible clients can compare satellite scenes
// of an area of interest and follow long-running comparisons as background jobs.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Raster Inspection:
//   - raster_info: Dimensions, bands, CRS and geotransform of a raster
//   - raster_cloud_mask: Cloud and shadow coverage of a single raster
//
// Change Detection:
//   - change_detect: Cloud-masked multi-spectral comparison of two rasters
//   - change_detect_ndvi: NDVI-only comparison
//
// Background Jobs:
//   - change_detect_submit: Queue a comparison and return its job id
//   - change_detect_status: State, stage and result of a job
//   - change_detect_history: Recent jobs for an area of interest
//
// Previews:
//   - change_preview: Heatmaps, masks, histograms and overlays of a result
//
// Every comparison runs through the job runner, so synchronous calls are
// recorded in the result store like submitted ones.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32602 for bad arguments, AOIs and unknown job ids; -32000 for
//     failures while running a tool
//   - message: "Invalid params" or "Tool execution failed"
//   - data: an ErrorData naming the error class (e.g. "BandCountError"), the
//     failed pipeline stage when known, and the Go error string
//
// A run with too few valid pixels is not an error: it returns a result whose
// metadata carries the "insufficient_valid_pixels" flag.
//
// # Usage
//
//	srv := server.New(*cfg, det, runner, logger, Version)
//	if err := srv.Run(); err != nil {
//	    logger.Error("server error", "error", err)
//	}
package server
