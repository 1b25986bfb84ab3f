package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-tonesense/internal/analyzer"
	"go-tonesense/internal/capture"
	"go-tonesense/internal/client"
	"go-tonesense/internal/consent"
	apperrors "go-tonesense/internal/errors"
	"go-tonesense/internal/export"
	"go-tonesense/internal/logger"
	"go-tonesense/internal/observer"
	"go-tonesense/pkg/models"
	"go-tonesense/pkg/validation"
)

const (
	defaultAnalysisTimeout = 60 * time.Second
	defaultAcquireTimeout  = 15 * time.Second
)

// Camera is the capture session the controller drives
type Camera interface {
	Open(ctx context.Context, facing capture.Facing) (*capture.Acquisition, error)
	Attach(acq *capture.Acquisition)
	CaptureFrame() (*capture.CapturedImage, error)
	Release()
	Switch() capture.Facing
	Status() capture.Status
}

// Renderer turns a result into a downloadable card
type Renderer interface {
	Render(result *models.AnalysisResult) (*export.Artifact, error)
}

// Options hold the controller's collaborators. Camera, Client and
// Renderer are required.
type Options struct {
	Camera    Camera
	Client    client.AnalysisClient
	Renderer  Renderer
	Consent   *consent.Gate
	Validator *validation.UploadValidator
	Checker   analyzer.FrameChecker
	Publisher observer.Subject
	Runner    *TaskRunner

	AnalysisTimeout time.Duration
	AcquireTimeout  time.Duration
}

// Controller is the capture-to-result state machine. All state changes
// happen under mu; background work checks the generation it was started
// with before touching state and is discarded once it has moved on.
type Controller struct {
	camera    Camera
	client    client.AnalysisClient
	renderer  Renderer
	gate      *consent.Gate
	validator *validation.UploadValidator
	checker   analyzer.FrameChecker
	publisher observer.Subject
	runner    *TaskRunner

	analysisTimeout time.Duration
	acquireTimeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	tasks      sync.WaitGroup
	mu         sync.Mutex
	publishMu  sync.Mutex
	session    Session
	generation uint64
	closed     bool
	pending    []observer.WorkflowEvent

	queueMu     sync.Mutex
	queue       []func()
	dispatching bool

	facing    capture.Facing
	acquiring bool
	camErr    *ErrorInfo
	hints     []validation.QualityIssue
	started   time.Time
}

// NewController creates a controller in Idle
func NewController(opts Options) (*Controller, error) {
	if opts.Camera == nil || opts.Client == nil || opts.Renderer == nil {
		return nil, apperrors.NewInternalError("workflow requires a camera, an analysis client and a renderer", nil)
	}
	if opts.Consent == nil {
		opts.Consent = consent.NewGate()
	}
	if opts.Validator == nil {
		opts.Validator = validation.NewUploadValidator()
	}
	if opts.Runner == nil {
		opts.Runner = NewTaskRunner(2)
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = defaultAnalysisTimeout
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = defaultAcquireTimeout
	}
	opts.Runner.Start()

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		camera:          opts.Camera,
		client:          opts.Client,
		renderer:        opts.Renderer,
		gate:            opts.Consent,
		validator:       opts.Validator,
		checker:         opts.Checker,
		publisher:       opts.Publisher,
		runner:          opts.Runner,
		analysisTimeout: opts.AnalysisTimeout,
		acquireTimeout:  opts.AcquireTimeout,
		ctx:             ctx,
		cancel:          cancel,
		session:         Session{ID: uuid.NewString(), Mode: ModeIdle},
		facing:          opts.Camera.Status().Facing,
	}, nil
}

// RequestCamera asks for consent before the camera opens
func (c *Controller) RequestCamera() error {
	c.mu.Lock()
	defer c.unlockAndPublish()

	if err := c.expect("request camera", ModeIdle); err != nil {
		return err
	}
	c.gate.Prompt()
	c.session.Intent = IntentCamera
	c.transition(ModeConsentPending, observer.Transition, nil)
	return nil
}

// RequestUpload opens the upload view
func (c *Controller) RequestUpload() error {
	c.mu.Lock()
	defer c.unlockAndPublish()

	if err := c.expect("request upload", ModeIdle); err != nil {
		return err
	}
	c.transition(ModeUploading, observer.Transition, nil)
	return nil
}

// Consent applies the user's answer to the open prompt. Accepting starts
// camera acquisition in the background; declining returns to Idle.
func (c *Controller) Consent(d consent.Decision) error {
	c.mu.Lock()
	defer c.unlockAndPublish()

	if err := c.expect("consent", ModeConsentPending); err != nil {
		return err
	}
	decision, err := c.gate.Decide(d.Accepted)
	if err != nil {
		return err
	}

	if !decision.Accepted {
		c.transition(ModeIdle, observer.Transition, nil)
		return nil
	}

	c.session.Intent = IntentNone
	c.transition(ModeCapturing, observer.Transition, nil)
	c.startAcquire(c.facing)
	return nil
}

// SwitchFacing releases the stream and acquires the other camera
func (c *Controller) SwitchFacing() error {
	c.mu.Lock()
	defer c.unlockAndPublish()

	if err := c.expect("switch camera", ModeCapturing); err != nil {
		return err
	}

	c.facing = c.camera.Switch()
	c.camErr = nil
	c.generation++
	c.session.Generation = c.generation
	c.emit(observer.WorkflowEvent{EventType: observer.CameraSwitched, Message: string(c.facing)})
	c.startAcquire(c.facing)
	return nil
}

// CaptureFrame grabs a still from the ready camera and submits it
func (c *Controller) CaptureFrame() error {
	c.mu.Lock()
	defer c.unlockAndPublish()

	if c.session.Mode == ModeAnalyzing {
		return ErrSubmissionInFlight
	}
	if err := c.expect("capture", ModeCapturing); err != nil {
		return err
	}

	img, err := c.camera.CaptureFrame()
	if err != nil {
		return err
	}

	c.transition(ModeAnalyzing, observer.AnalysisStarted, nil)
	gen := c.generation
	c.submit(gen, "capture", func(ctx context.Context) (*models.AnalysisResponse, error) {
		c.checkFrame(gen, img)
		return c.client.SubmitCapture(ctx, img)
	})
	return nil
}

// SubmitFile submits an upload. The file is validated again so an
// invalid file never reaches the session.
func (c *Controller) SubmitFile(file validation.UploadedFile) error {
	c.mu.Lock()
	defer c.unlockAndPublish()

	if c.session.Mode == ModeAnalyzing {
		return ErrSubmissionInFlight
	}
	if err := c.expect("submit file", ModeUploading); err != nil {
		return err
	}

	sel, err := c.validator.Validate(file)
	if err != nil {
		return err
	}

	c.transition(ModeAnalyzing, observer.AnalysisStarted, nil)
	upload := sel.File
	c.submit(c.generation, "upload", func(ctx context.Context) (*models.AnalysisResponse, error) {
		return c.client.SubmitFile(ctx, upload)
	})
	return nil
}

// Back leaves capture or upload for Idle
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.unlockAndPublish()

	if err := c.expect("back", ModeCapturing, ModeUploading); err != nil {
		return err
	}
	c.transition(ModeIdle, observer.Transition, nil)
	return nil
}

// Retry clears a failure and returns to Idle
func (c *Controller) Retry() error {
	c.mu.Lock()
	defer c.unlockAndPublish()

	if err := c.expect("retry", ModeFailed); err != nil {
		return err
	}
	c.transition(ModeIdle, observer.Transition, nil)
	return nil
}

// Reset returns to Idle from any mode. An analysis in flight keeps
// running; its outcome is discarded.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.unlockAndPublish()

	if c.closed {
		return ErrClosed
	}
	c.gate.Cancel()
	c.camera.Release()
	c.session.ID = uuid.NewString()
	c.transition(ModeIdle, observer.Transition, nil)
	return nil
}

// Session returns a copy of the current session
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.clone()
}

// CameraStatus returns the capture view's inline state
func (c *Controller) CameraStatus() CameraStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := CameraStatus{
		Ready:     c.session.Mode == ModeCapturing && c.camera.Status().Ready,
		Acquiring: c.acquiring,
		Facing:    c.facing,
		Hints:     append([]validation.QualityIssue(nil), c.hints...),
	}
	if c.camErr != nil {
		e := *c.camErr
		status.Error = &e
	}
	return status
}

// Export renders the current result. A render failure leaves the
// session untouched.
func (c *Controller) Export() (*export.Artifact, error) {
	c.mu.Lock()
	if err := c.expect("export", ModeResultsReady); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	result := c.session.Result.Clone()
	sessionID := c.session.ID
	c.mu.Unlock()

	art, err := c.renderer.Render(&result.Analysis)
	if err != nil {
		logger.WithError(err).WithField("session_id", sessionID).Error("Export failed")
		return nil, err
	}
	return art, nil
}

// Wait blocks until background tasks have finished
func (c *Controller) Wait() {
	c.tasks.Wait()
}

// Close releases the camera, discards pending outcomes and stops the
// task runner
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.leaveCapturing()
	c.generation++
	c.session.Generation = c.generation
	c.mu.Unlock()

	c.cancel()
	c.runner.Close()
}

// expect fails unless the session is in one of modes
func (c *Controller) expect(event string, modes ...Mode) error {
	if c.closed {
		return ErrClosed
	}
	for _, m := range modes {
		if c.session.Mode == m {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, event, c.session.Mode)
}

// transition is the only place the mode changes. Leaving Capturing always
// releases the camera.
func (c *Controller) transition(to Mode, kind observer.EventType, cause error) {
	from := c.session.Mode
	if from == ModeCapturing && to != ModeCapturing {
		c.leaveCapturing()
	}

	c.session.Mode = to
	c.generation++
	c.session.Generation = c.generation

	var ev observer.WorkflowEvent
	switch to {
	case ModeIdle:
		c.session.Error = nil
		c.session.Result = nil
		c.session.Intent = IntentNone
		c.hints = nil
	case ModeUploading, ModeCapturing:
		c.session.Error = nil
		c.session.Result = nil
		c.hints = nil
	case ModeAnalyzing:
		c.started = time.Now()
	case ModeResultsReady, ModeFailed:
		ev.Duration = time.Since(c.started)
	}

	if cause != nil {
		info := NewErrorInfo(cause)
		ev.ErrorType = string(info.Type)
		ev.Message = info.Message
	}
	ev.EventType = kind
	ev.From = string(from)
	ev.To = string(to)
	c.emit(ev)
}

// leaveCapturing is the exit hook for the Capturing phase
func (c *Controller) leaveCapturing() {
	c.camera.Release()
	c.acquiring = false
	c.camErr = nil
}

// startAcquire opens the camera in the background for the current generation
func (c *Controller) startAcquire(facing capture.Facing) {
	gen := c.generation
	c.acquiring = true

	c.launch(func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.acquireTimeout)
		defer cancel()

		acq, err := c.camera.Open(ctx, facing)

		c.mu.Lock()
		defer c.unlockAndPublish()

		if gen != c.generation || c.session.Mode != ModeCapturing {
			if acq != nil {
				if closeErr := acq.Close(); closeErr != nil {
					logger.WithError(closeErr).Warn("Failed to close stale camera stream")
				}
			}
			c.emit(observer.WorkflowEvent{EventType: observer.StaleDiscarded, Message: "camera acquisition"})
			return
		}

		c.acquiring = false
		if err != nil {
			c.camErr = NewErrorInfo(err)
			c.emit(observer.WorkflowEvent{
				EventType: observer.CameraFailed,
				ErrorType: string(c.camErr.Type),
				Message:   c.camErr.Message,
			})
			return
		}

		c.camera.Attach(acq)
		c.emit(observer.WorkflowEvent{EventType: observer.CameraReady, Message: string(facing)})
	})
}

// submit sends one analysis request and resolves the session with its
// outcome unless the generation has moved on
func (c *Controller) submit(gen uint64, source string, send func(ctx context.Context) (*models.AnalysisResponse, error)) {
	c.launch(func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.analysisTimeout)
		defer cancel()

		resp, err := send(ctx)

		c.mu.Lock()
		defer c.unlockAndPublish()

		if gen != c.generation {
			logger.WithFields(logrus.Fields{
				"session_id": c.session.ID,
				"generation": gen,
				"current":    c.generation,
				"source":     source,
			}).Debug("Discarding stale analysis outcome")
			c.emit(observer.WorkflowEvent{EventType: observer.StaleDiscarded, Message: source})
			return
		}

		if err != nil {
			c.session.Error = NewErrorInfo(err)
			c.transition(ModeFailed, observer.AnalysisFailed, err)
			return
		}
		if resp == nil {
			resp = &models.AnalysisResponse{}
		}
		c.session.Result = resp.Clone()
		c.transition(ModeResultsReady, observer.AnalysisCompleted, nil)
	})
}

// checkFrame attaches advisory quality hints to the capture
func (c *Controller) checkFrame(gen uint64, img *capture.CapturedImage) {
	if c.checker == nil || img.Image() == nil {
		return
	}
	hints := c.checker.Check(img.Image())

	c.mu.Lock()
	defer c.unlockAndPublish()

	if gen != c.generation || len(hints) == 0 {
		return
	}
	c.hints = hints

	types := make([]string, 0, len(hints))
	for _, h := range hints {
		types = append(types, h.Type)
	}
	c.emit(observer.WorkflowEvent{EventType: observer.FrameHints, Message: strings.Join(types, ",")})
}

// launch queues job for the task runner. The caller holds mu, and a full
// runner queue must not stall transitions, so a single dispatcher drains
// the queue in submission order; tasks tracks the job until it has finished.
func (c *Controller) launch(job func()) {
	c.tasks.Add(1)
	c.queueMu.Lock()
	c.queue = append(c.queue, job)
	start := !c.dispatching
	c.dispatching = true
	c.queueMu.Unlock()
	if start {
		go c.dispatch()
	}
}

// dispatch submits queued jobs one at a time until the queue is empty
func (c *Controller) dispatch() {
	for {
		c.queueMu.Lock()
		if len(c.queue) == 0 {
			c.dispatching = false
			c.queueMu.Unlock()
			return
		}
		job := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.queueMu.Unlock()

		ok := c.runner.Submit(func() {
			defer c.tasks.Done()
			job()
		})
		if !ok {
			logger.Warn("Task runner closed, dropping workflow task")
			c.tasks.Done()
		}
	}
}

// emit queues an event for delivery once mu is released
func (c *Controller) emit(ev observer.WorkflowEvent) {
	if c.publisher == nil {
		return
	}
	ev.Timestamp = time.Now()
	ev.SessionID = c.session.ID
	if ev.Generation == 0 {
		ev.Generation = c.generation
	}
	c.pending = append(c.pending, ev)
}

// unlockAndPublish releases mu and delivers queued events in order.
// publishMu is taken before mu is released so batches never interleave.
func (c *Controller) unlockAndPublish() {
	events := c.pending
	c.pending = nil
	if len(events) == 0 || c.publisher == nil {
		c.mu.Unlock()
		return
	}

	c.publishMu.Lock()
	c.mu.Unlock()
	defer c.publishMu.Unlock()

	for _, ev := range events {
		c.publisher.NotifyObservers(c.ctx, ev)
	}
}
