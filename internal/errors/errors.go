package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeAnalysis     ErrorType = "analysis"
	ErrorTypePermission   ErrorType = "permission"
	ErrorTypePrecondition ErrorType = "precondition"
	ErrorTypeRender       ErrorType = "render"
	ErrorTypeInternal     ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// UserMessage is the text shown to the user: the service detail when one
// was carried, the message otherwise.
func (e *AppError) UserMessage() string {
	if e.Details != "" {
		return e.Details
	}
	return e.Message
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNetworkError creates an error for a request that got no response at all
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewAnalysisError creates an error for a non-success response from the
// analysis service. detail is the human-readable text from the response body.
func NewAnalysisError(statusCode int, detail string) *AppError {
	code := statusCode
	if code < 400 || code > 599 {
		code = http.StatusBadGateway
	}
	return &AppError{
		Type:       ErrorTypeAnalysis,
		Message:    "analysis service returned " + http.StatusText(statusCode),
		Details:    detail,
		StatusCode: code,
	}
}

// NewPermissionError creates an error for denied or unavailable camera access
func NewPermissionError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypePermission,
		Message:    message,
		StatusCode: http.StatusForbidden,
		Cause:      cause,
	}
}

// NewPreconditionError creates an error for an operation issued in the wrong state
func NewPreconditionError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypePrecondition,
		Message:    message,
		StatusCode: http.StatusConflict,
		Cause:      cause,
	}
}

// NewRenderError creates a new export rasterization error
func NewRenderError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeRender,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// IsType checks if the error, or any error it wraps, is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type, or an empty type for non-application errors
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
