// Package types holds values shared across the service and API layers.
package types

import (
	"errors"
	"fmt"
)

// Error codes carried by CodedError.
const (
	CodeValidation         = "VALIDATION"
	CodePropertyNotFound   = "PROPERTY_NOT_FOUND"
	CodeSnapshotNotFound   = "SNAPSHOT_NOT_FOUND"
	CodeGalleryNotFound    = "GALLERY_NOT_FOUND"
	CodeRenderFailure      = "RENDER_FAILURE"
	CodeBrowserUnavailable = "BROWSER_UNAVAILABLE"
	CodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// Code returns the code of the first CodedError in err's chain, or "".
func Code(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
