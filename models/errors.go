package models

import "fmt"

// Error codes used throughout the pipeline. Every fault that aborts a run
// carries one of these so the log trail says which stage died.
const (
	ErrCodeTimeout       = "STAGE_TIMEOUT"
	ErrCodeNavigation    = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash  = "BROWSER_CRASH"
	ErrCodeExtraction    = "EXTRACTION_FAILED"
	ErrCodeGeometry      = "GEOMETRY_FAILED"
	ErrCodeScreenshot    = "SCREENSHOT_FAILED"
	ErrCodeCrop          = "CROP_FAILED"
	ErrCodeDownload      = "DOWNLOAD_FAILED"
	ErrCodeSerialization = "SERIALIZATION_FAILED"
	ErrCodePageStructure = "PAGE_STRUCTURE_MISMATCH"
)

// PipelineError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type PipelineError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(code, message string, err error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Err: err}
}
