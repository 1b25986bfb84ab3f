package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-tonesense/internal/client"
	"go-tonesense/internal/config"
	"go-tonesense/internal/consent"
	apperrors "go-tonesense/internal/errors"
	"go-tonesense/internal/export"
	"go-tonesense/internal/logger"
	"go-tonesense/internal/observer"
	"go-tonesense/internal/preference"
	"go-tonesense/internal/workflow"
	"go-tonesense/pkg/models"
	"go-tonesense/pkg/validation"
)

// Workflow is the controller surface the API drives
type Workflow interface {
	RequestCamera() error
	RequestUpload() error
	Consent(d consent.Decision) error
	SwitchFacing() error
	CaptureFrame() error
	SubmitFile(file validation.UploadedFile) error
	Back() error
	Retry() error
	Reset() error
	Export() (*export.Artifact, error)
	Session() workflow.Session
	CameraStatus() workflow.CameraStatus
}

// Deps are the collaborators of the local API. Metrics, Runner and Hub
// are optional.
type Deps struct {
	Workflow    Workflow
	Client      client.AnalysisClient
	Validator   *validation.UploadValidator
	Preferences *preference.Store
	Metrics     *observer.MetricsObserver
	Runner      *workflow.TaskRunner
	Hub         *Hub
	Config      *config.Config
}

// SessionView is the body of every session endpoint
type SessionView struct {
	Session   workflow.Session      `json:"session"`
	Camera    workflow.CameraStatus `json:"camera"`
	Selection *SelectionView        `json:"selection,omitempty"`
}

// SelectionView describes the file picked in the upload view
type SelectionView struct {
	Name      string `json:"name"`
	MIMEType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Preview   string `json:"preview"`
}

type server struct {
	deps Deps

	// The selection belongs to the upload view, not the session.
	mu        sync.Mutex
	selection *validation.Selection
}

// NewHandler builds the gin router for the local API
func NewHandler(deps Deps) http.Handler {
	if deps.Validator == nil {
		deps.Validator = validation.NewUploadValidator()
	}
	if deps.Config == nil {
		deps.Config = &config.Config{MaxRequestBodySize: 12 * 1024 * 1024, RequestTimeout: 30 * time.Second}
	}
	s := &server{deps: deps}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(deps.Config.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", healthCheck)
	r.GET("/ws", s.events)

	api := r.Group("/api")
	api.GET("/health", s.serviceHealth)
	api.GET("/metrics", s.metrics)
	api.GET("/preferences", s.getPreferences)
	api.PUT("/preferences", s.putPreferences)

	session := api.Group("/session")
	session.GET("", s.session)
	session.POST("/camera", s.action(deps.Workflow.RequestCamera))
	session.POST("/consent", s.consent)
	session.POST("/camera/switch", s.action(deps.Workflow.SwitchFacing))
	session.POST("/capture", s.action(deps.Workflow.CaptureFrame))
	session.POST("/upload", s.action(deps.Workflow.RequestUpload))
	session.PUT("/upload/file", s.selectFile)
	session.DELETE("/upload/file", s.clearFile)
	session.POST("/upload/submit", s.submitFile)
	session.POST("/back", s.leavingAction(deps.Workflow.Back))
	session.POST("/retry", s.leavingAction(deps.Workflow.Retry))
	session.POST("/reset", s.leavingAction(deps.Workflow.Reset))
	session.GET("/export", s.export)

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *server) serviceHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.deps.Config.RequestTimeout)
	defer cancel()

	health, err := s.deps.Client.Health(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, health)
}

func (s *server) metrics(c *gin.Context) {
	body := gin.H{}
	if s.deps.Metrics != nil {
		body["workflow"] = s.deps.Metrics.GetMetrics()
	}
	if s.deps.Runner != nil {
		body["runner"] = s.deps.Runner.Stats()
	}
	if s.deps.Hub != nil {
		body["websocket_clients"] = s.deps.Hub.ClientCount()
	}
	c.JSON(http.StatusOK, body)
}

func (s *server) events(c *gin.Context) {
	if s.deps.Hub == nil {
		respondError(c, apperrors.NewPreconditionError("event stream is not enabled", nil))
		return
	}
	s.deps.Hub.serveWS(c)
}

func (s *server) getPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"dark": s.deps.Preferences.Get().Dark})
}

func (s *server) putPreferences(c *gin.Context) {
	var req models.PreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("invalid request format", err))
		return
	}
	if err := s.deps.Preferences.SetDark(*req.Dark); err != nil {
		respondError(c, apperrors.NewInternalError("failed to save preferences", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"dark": s.deps.Preferences.Get().Dark})
}

func (s *server) session(c *gin.Context) {
	c.JSON(http.StatusOK, s.view())
}

// action runs a workflow event and answers with the resulting view
func (s *server) action(op func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := op(); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.view())
	}
}

// leavingAction is an action that closes the upload view
func (s *server) leavingAction(op func() error) gin.HandlerFunc {
	return s.action(func() error {
		if err := op(); err != nil {
			return err
		}
		s.setSelection(nil)
		return nil
	})
}

func (s *server) consent(c *gin.Context) {
	var req models.ConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError(`body must be {"accepted": true|false}`, err))
		return
	}
	s.action(func() error {
		return s.deps.Workflow.Consent(consent.Decision{Accepted: *req.Accepted})
	})(c)
}

func (s *server) selectFile(c *gin.Context) {
	if mode := s.deps.Workflow.Session().Mode; mode != workflow.ModeUploading {
		respondError(c, fmt.Errorf("%w: cannot select a file while %s", workflow.ErrInvalidTransition, mode))
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperrors.NewValidationError("request body too large", err))
			return
		}
		respondError(c, apperrors.NewValidationError(`multipart field "file" is required`, err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, apperrors.NewValidationError("failed to open uploaded file", err))
		return
	}
	defer f.Close()

	sel, err := s.deps.Validator.ValidateReader(fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		respondError(c, err)
		return
	}

	s.setSelection(sel)
	logger.WithFields(logrus.Fields{
		"name":       sel.File.Name,
		"mime_type":  sel.File.MIMEType,
		"size_bytes": sel.File.SizeBytes,
	}).Debug("Upload selected")
	c.JSON(http.StatusOK, s.view())
}

func (s *server) clearFile(c *gin.Context) {
	s.setSelection(nil)
	c.JSON(http.StatusOK, s.view())
}

func (s *server) submitFile(c *gin.Context) {
	s.mu.Lock()
	sel := s.selection
	if sel == nil {
		s.mu.Unlock()
		respondError(c, apperrors.NewValidationError("no file selected", nil))
		return
	}
	err := s.deps.Workflow.SubmitFile(sel.File)
	if err == nil {
		s.selection = nil
	}
	s.mu.Unlock()

	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view())
}

func (s *server) export(c *gin.Context) {
	art, err := s.deps.Workflow.Export()
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.SuggestedFilename))
	c.Data(http.StatusOK, "image/png", art.PNG)
}

func (s *server) setSelection(sel *validation.Selection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = sel
}

func (s *server) view() SessionView {
	v := SessionView{
		Session: s.deps.Workflow.Session(),
		Camera:  s.deps.Workflow.CameraStatus(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection != nil {
		v.Selection = &SelectionView{
			Name:      s.selection.File.Name,
			MIMEType:  s.selection.File.MIMEType,
			SizeBytes: s.selection.File.SizeBytes,
			Preview:   s.selection.Preview,
		}
	}
	return v
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}).Debug("Request handled")
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, c.Errors.Last().Err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// userMessage prefers the carried detail of a bare AppError and keeps the
// context of wrapped ones
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && error(appErr) == err {
		return appErr.UserMessage()
	}
	return err.Error()
}

func respondError(c *gin.Context, err error) {
	code := determineStatusCode(err)

	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Type:    string(apperrors.TypeOf(err)),
		Message: userMessage(err),
	})
}
