package workflow

import (
	"errors"

	"go-tonesense/internal/capture"
	apperrors "go-tonesense/internal/errors"
	"go-tonesense/pkg/models"
	"go-tonesense/pkg/validation"
)

// Mode is the active workflow state
type Mode string

const (
	ModeIdle           Mode = "idle"
	ModeConsentPending Mode = "consent_pending"
	ModeCapturing      Mode = "capturing"
	ModeUploading      Mode = "uploading"
	ModeAnalyzing      Mode = "analyzing"
	ModeResultsReady   Mode = "results_ready"
	ModeFailed         Mode = "failed"
)

// Modes lists every workflow state
var Modes = []Mode{
	ModeIdle, ModeConsentPending, ModeCapturing, ModeUploading,
	ModeAnalyzing, ModeResultsReady, ModeFailed,
}

// Valid reports whether m is one of the workflow states
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// Intent is what the user asked for before consent
type Intent string

const (
	IntentNone   Intent = ""
	IntentCamera Intent = "camera"
)

var (
	// ErrInvalidTransition is returned for an event the current mode does not accept
	ErrInvalidTransition = apperrors.NewPreconditionError("action is not available right now", nil)

	// ErrSubmissionInFlight is returned for a submission while one is being analyzed
	ErrSubmissionInFlight = apperrors.NewPreconditionError("an analysis is already in progress", nil)

	// ErrClosed is returned once the controller has been torn down
	ErrClosed = apperrors.NewPreconditionError("workflow is closed", nil)
)

// ErrorInfo is the failure shown on the Failed screen or inline
type ErrorInfo struct {
	Type       apperrors.ErrorType `json:"type"`
	Message    string              `json:"message"`
	StatusCode int                 `json:"status_code,omitempty"`
}

// NewErrorInfo summarizes err for display
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return &ErrorInfo{Type: appErr.Type, Message: appErr.UserMessage(), StatusCode: appErr.StatusCode}
	}
	return &ErrorInfo{Type: apperrors.ErrorTypeInternal, Message: err.Error()}
}

// Session is a snapshot of the workflow. Error and Result are never both set.
type Session struct {
	ID         string                   `json:"id"`
	Mode       Mode                     `json:"mode"`
	Intent     Intent                   `json:"intent,omitempty"`
	Error      *ErrorInfo               `json:"error,omitempty"`
	Result     *models.AnalysisResponse `json:"result,omitempty"`
	Generation uint64                   `json:"generation"`
}

func (s Session) clone() Session {
	c := s
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	c.Result = s.Result.Clone()
	return c
}

// CameraStatus is the inline state of the capture view
type CameraStatus struct {
	Ready     bool                      `json:"ready"`
	Acquiring bool                      `json:"acquiring"`
	Facing    capture.Facing            `json:"facing"`
	Error     *ErrorInfo                `json:"error,omitempty"`
	Hints     []validation.QualityIssue `json:"hints,omitempty"`
}
