package server

import (
	"errors"

	"github.com/ironsheep/change-detect-mcp/internal/detection"
	"github.com/ironsheep/change-detect-mcp/internal/jobs"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeToolFailed     = -32000
)

var (
	errInvalidArgs   = errors.New("invalid arguments")
	errUnknownTool   = errors.New("unknown tool")
	errNoResult      = errors.New("job result not available")
	errWrongAnalysis = errors.New("preview kind does not apply to this result")
)

// ErrorData is the data member of a tool error response.
type ErrorData struct {
	// Error is the name of the error class, e.g. "BandCountError".
	Error string `json:"error"`

	// Stage is the pipeline stage that failed, when known.
	Stage string `json:"stage,omitempty"`

	Detail string `json:"detail"`
}

// errorClasses maps sentinels to their reported name and JSON-RPC code.
// Earlier entries win when an error wraps several.
var errorClasses = []struct {
	err  error
	name string
	code int
}{
	{errInvalidArgs, "InvalidArgumentsError", codeInvalidParams},
	{errUnknownTool, "UnknownToolError", codeInvalidParams},
	{jobs.ErrRequest, "InvalidArgumentsError", codeInvalidParams},
	{jobs.ErrNotFound, "JobNotFoundError", codeInvalidParams},
	{detection.ErrInvalidAOI, "InvalidAOIError", codeInvalidParams},
	{errWrongAnalysis, "InvalidArgumentsError", codeInvalidParams},
	{detection.ErrBandCount, "BandCountError", codeToolFailed},
	{detection.ErrDimensionMismatch, "DimensionMismatchError", codeToolFailed},
	{detection.ErrInsufficientData, "InsufficientDataError", codeToolFailed},
	{detection.ErrPreprocessing, "PreprocessingError", codeToolFailed},
	{jobs.ErrTimeout, "TimeoutError", codeToolFailed},
	{jobs.ErrClosed, "UnavailableError", codeToolFailed},
	{errNoResult, "ResultUnavailableError", codeToolFailed},
	{jobs.ErrNoStore, "UnavailableError", codeToolFailed},
}

// classifyError returns the JSON-RPC code and error data for err.
func classifyError(err error) (int, ErrorData) {
	data := ErrorData{Error: "ToolError", Detail: err.Error()}
	code := codeToolFailed
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			data.Error, code = c.name, c.code
			break
		}
	}
	data.Stage = string(detection.FailedStage(err))
	return code, data
}
