package workflow

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-tonesense/internal/analyzer"
	"go-tonesense/internal/capture"
	"go-tonesense/internal/capture/capturetest"
	"go-tonesense/internal/client"
	"go-tonesense/internal/consent"
	apperrors "go-tonesense/internal/errors"
	"go-tonesense/internal/export"
	"go-tonesense/internal/observer"
	"go-tonesense/pkg/models"
	"go-tonesense/pkg/validation"
)

const softAutumnBody = `{"success":true,"analysis":{"season":"Soft Autumn","season_description":"Muted and warm.","undertone":{"classification":"warm","warm_score":0.7,"cool_score":0.3},"depth":{"level":"medium","l_value":55},"contrast":{"level":"low","chroma":18},"skin_color":{"hex":"#c8a27c","rgb":[200,162,124],"lab":[69,8,24]},"best_colors":["#8a9a5b"],"worst_colors":["#ff00ff"]}}`

type fakeClient struct {
	mu           sync.Mutex
	fileCalls    int
	captureCalls int
	onFile       func(ctx context.Context, file validation.UploadedFile) (*models.AnalysisResponse, error)
	onCapture    func(ctx context.Context, img *capture.CapturedImage) (*models.AnalysisResponse, error)
}

func (f *fakeClient) SubmitFile(ctx context.Context, file validation.UploadedFile) (*models.AnalysisResponse, error) {
	f.mu.Lock()
	f.fileCalls++
	fn := f.onFile
	f.mu.Unlock()
	if fn == nil {
		return result("Soft Autumn"), nil
	}
	return fn(ctx, file)
}

func (f *fakeClient) SubmitCapture(ctx context.Context, img *capture.CapturedImage) (*models.AnalysisResponse, error) {
	f.mu.Lock()
	f.captureCalls++
	fn := f.onCapture
	f.mu.Unlock()
	if fn == nil {
		return result("Deep Winter"), nil
	}
	return fn(ctx, img)
}

func (f *fakeClient) Health(ctx context.Context) (*models.HealthResponse, error) {
	return &models.HealthResponse{Status: "ok"}, nil
}

func (f *fakeClient) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fileCalls, f.captureCalls
}

type recorder struct {
	mu     sync.Mutex
	events []observer.WorkflowEvent
}

func (r *recorder) OnEvent(ctx context.Context, event observer.WorkflowEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) GetObserverName() string { return "recorder" }

// modes returns the mode sequence starting from Idle
func (r *recorder) modes() []Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Mode{ModeIdle}
	for _, ev := range r.events {
		if ev.To != "" {
			out = append(out, Mode(ev.To))
		}
	}
	return out
}

func (r *recorder) count(t observer.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.EventType == t {
			n++
		}
	}
	return n
}

type failingRenderer struct{}

func (failingRenderer) Render(*models.AnalysisResult) (*export.Artifact, error) {
	return nil, apperrors.NewRenderError("rasterizer exploded", nil)
}

type harness struct {
	ctrl   *Controller
	device *capturetest.Device
	client *fakeClient
	events *recorder
}

func newHarness(t *testing.T, c client.AnalysisClient) *harness {
	t.Helper()
	h := &harness{device: capturetest.NewDevice(), events: &recorder{}}
	if c == nil {
		h.client = &fakeClient{}
		c = h.client
	}

	pub := observer.NewEventPublisher()
	pub.Subscribe(h.events)

	ctrl, err := NewController(Options{
		Camera:          capture.NewSession(h.device),
		Client:          c,
		Renderer:        export.NewRenderer(export.WithClock(func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) })),
		Checker:         analyzer.NewFrameChecker(),
		Publisher:       pub,
		Runner:          NewTaskRunner(4),
		AnalysisTimeout: 5 * time.Second,
		AcquireTimeout:  2 * time.Second,
	})
	require.NoError(t, err)
	h.ctrl = ctrl
	t.Cleanup(ctrl.Close)
	return h
}

func result(season string) *models.AnalysisResponse {
	return &models.AnalysisResponse{Success: true, Analysis: models.AnalysisResult{Season: season}}
}

func jpegFile(size int) validation.UploadedFile {
	return validation.UploadedFile{Name: "face.jpg", MIMEType: "image/jpeg", SizeBytes: int64(size), Data: make([]byte, size)}
}

func (h *harness) enterCapturing(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.RequestCamera())
	require.NoError(t, h.ctrl.Consent(consent.Decision{Accepted: true}))
	h.ctrl.Wait()
	require.True(t, h.ctrl.CameraStatus().Ready)
}

// blockUntil waits for release, giving up when the request is cancelled
func blockUntil(ctx context.Context, release <-chan struct{}) error {
	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitForMode(t *testing.T, c *Controller, want Mode) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Session().Mode == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for mode %s, still %s", want, c.Session().Mode)
}

func TestController_NewRequiresCollaborators(t *testing.T) {
	_, err := NewController(Options{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
}

func TestScenarioA_DeclineConsent(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.ctrl.RequestCamera())
	assert.Equal(t, IntentCamera, h.ctrl.Session().Intent)
	require.NoError(t, h.ctrl.Consent(consent.Decision{Accepted: false}))

	s := h.ctrl.Session()
	assert.Equal(t, ModeIdle, s.Mode)
	assert.Equal(t, IntentNone, s.Intent)
	assert.Equal(t, []Mode{ModeIdle, ModeConsentPending, ModeIdle}, h.events.modes())
	assert.Empty(t, h.device.Opens(), "declining must not touch the camera")

	// Consent is asked again on the next request
	require.NoError(t, h.ctrl.RequestCamera())
	assert.Equal(t, ModeConsentPending, h.ctrl.Session().Mode)
	require.NoError(t, h.ctrl.Consent(consent.Decision{Accepted: false}))
}

func TestScenarioB_UploadSoftAutumn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, softAutumnBody)
	}))
	defer server.Close()

	h := newHarness(t, client.NewHTTPAnalysisClient(client.Options{BaseURL: server.URL, Backoff: time.Millisecond}))

	file := jpegFile(2 * 1024 * 1024)
	sel, err := validation.NewUploadValidator().Validate(file)
	require.NoError(t, err)

	require.NoError(t, h.ctrl.RequestUpload())
	require.NoError(t, h.ctrl.SubmitFile(sel.File))
	h.ctrl.Wait()

	s := h.ctrl.Session()
	require.Equal(t, ModeResultsReady, s.Mode)
	require.NotNil(t, s.Result)
	assert.Nil(t, s.Error)
	assert.Equal(t, "Soft Autumn", s.Result.Analysis.Season)
	assert.Equal(t, []Mode{ModeIdle, ModeUploading, ModeAnalyzing, ModeResultsReady}, h.events.modes())

	art, err := h.ctrl.Export()
	require.NoError(t, err)
	assert.Equal(t, "tonesense-soft-autumn.png", art.SuggestedFilename)
	assert.NotEmpty(t, art.PNG)
}

func TestScenarioC_PermissionDenied(t *testing.T) {
	h := newHarness(t, nil)
	h.device.OpenErr = apperrors.NewPermissionError("NotAllowedError", nil)

	require.NoError(t, h.ctrl.RequestCamera())
	require.NoError(t, h.ctrl.Consent(consent.Decision{Accepted: true}))
	h.ctrl.Wait()

	status := h.ctrl.CameraStatus()
	assert.False(t, status.Ready)
	assert.False(t, status.Acquiring)
	require.NotNil(t, status.Error)
	assert.Equal(t, apperrors.ErrorTypePermission, status.Error.Type)

	s := h.ctrl.Session()
	assert.Equal(t, ModeCapturing, s.Mode)
	assert.Nil(t, s.Error, "permission errors stay out of the session")

	err := h.ctrl.CaptureFrame()
	assert.True(t, errors.Is(err, capture.ErrNotReady))

	require.NoError(t, h.ctrl.Back())
	assert.Equal(t, ModeIdle, h.ctrl.Session().Mode)
	assert.Nil(t, h.ctrl.CameraStatus().Error)
	assert.Equal(t, 0, h.device.OpenStreams())
}

func TestScenarioD_ModelUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"detail":"model unavailable"}`)
	}))
	defer server.Close()

	h := newHarness(t, client.NewHTTPAnalysisClient(client.Options{BaseURL: server.URL, Backoff: time.Millisecond}))

	require.NoError(t, h.ctrl.RequestUpload())
	require.NoError(t, h.ctrl.SubmitFile(jpegFile(1024)))
	h.ctrl.Wait()

	s := h.ctrl.Session()
	require.Equal(t, ModeFailed, s.Mode)
	require.NotNil(t, s.Error)
	assert.Nil(t, s.Result)
	assert.Equal(t, "model unavailable", s.Error.Message)
	assert.Equal(t, apperrors.ErrorTypeAnalysis, s.Error.Type)

	require.NoError(t, h.ctrl.Retry())
	s = h.ctrl.Session()
	assert.Equal(t, ModeIdle, s.Mode)
	assert.Nil(t, s.Error)
}

func TestController_CaptureFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.enterCapturing(t)

	require.NoError(t, h.ctrl.CaptureFrame())
	assert.Equal(t, ModeAnalyzing, h.ctrl.Session().Mode)
	assert.Equal(t, 0, h.device.OpenStreams(), "leaving Capturing releases the camera")

	h.ctrl.Wait()
	s := h.ctrl.Session()
	require.Equal(t, ModeResultsReady, s.Mode)
	assert.Equal(t, "Deep Winter", s.Result.Analysis.Season)

	files, captures := h.client.calls()
	assert.Equal(t, 0, files)
	assert.Equal(t, 1, captures)
}

func TestController_CaptureSendsDataURL(t *testing.T) {
	h := newHarness(t, nil)
	var got string
	h.client.onCapture = func(ctx context.Context, img *capture.CapturedImage) (*models.AnalysisResponse, error) {
		got = img.EncodedData
		return result("Cool Summer"), nil
	}
	h.enterCapturing(t)

	require.NoError(t, h.ctrl.CaptureFrame())
	h.ctrl.Wait()
	assert.Contains(t, got, "data:image/jpeg;base64,")
}

func TestController_CaptureQualityHints(t *testing.T) {
	h := newHarness(t, nil)
	h.device.Frame = capturetest.PortraitFrame(160, 120)
	h.enterCapturing(t)

	require.NoError(t, h.ctrl.CaptureFrame())
	h.ctrl.Wait()

	hints := h.ctrl.CameraStatus().Hints
	require.NotEmpty(t, hints)
	assert.Equal(t, "low_resolution", hints[0].Type)
	assert.Equal(t, ModeResultsReady, h.ctrl.Session().Mode, "hints never block the submission")
	assert.Equal(t, 1, h.events.count(observer.FrameHints))
}

func TestController_ReleaseOnEveryExit(t *testing.T) {
	exits := []struct {
		name string
		exit func(c *Controller) error
		want Mode
	}{
		{"capture", func(c *Controller) error { return c.CaptureFrame() }, ModeAnalyzing},
		{"back", func(c *Controller) error { return c.Back() }, ModeIdle},
		{"reset", func(c *Controller) error { return c.Reset() }, ModeIdle},
		{"close", func(c *Controller) error { c.Close(); return nil }, ModeCapturing},
	}

	for _, tt := range exits {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.enterCapturing(t)
			require.Equal(t, 1, h.device.OpenStreams())

			require.NoError(t, tt.exit(h.ctrl))
			assert.Equal(t, tt.want, h.ctrl.Session().Mode)
			assert.Equal(t, 0, h.device.OpenStreams())
			for _, s := range h.device.Streams() {
				assert.GreaterOrEqual(t, s.Closes(), 1)
			}
			h.ctrl.Wait()
		})
	}
}

func TestController_StaleAcquisitionIsReleased(t *testing.T) {
	h := newHarness(t, nil)
	h.device.Gate = make(chan struct{})

	require.NoError(t, h.ctrl.RequestCamera())
	require.NoError(t, h.ctrl.Consent(consent.Decision{Accepted: true}))
	assert.True(t, h.ctrl.CameraStatus().Acquiring)

	require.NoError(t, h.ctrl.Back())
	close(h.device.Gate)
	h.ctrl.Wait()

	require.Len(t, h.device.Streams(), 1)
	assert.Equal(t, 0, h.device.OpenStreams(), "an acquisition that lands after back is closed")
	assert.False(t, h.ctrl.CameraStatus().Ready)
	assert.Equal(t, ModeIdle, h.ctrl.Session().Mode)
	assert.Equal(t, 1, h.events.count(observer.StaleDiscarded))
}

func TestController_SwitchFacing(t *testing.T) {
	h := newHarness(t, nil)
	h.enterCapturing(t)
	assert.Equal(t, capture.FacingUser, h.ctrl.CameraStatus().Facing)

	require.NoError(t, h.ctrl.SwitchFacing())
	h.ctrl.Wait()

	status := h.ctrl.CameraStatus()
	assert.True(t, status.Ready)
	assert.Equal(t, capture.FacingEnvironment, status.Facing)

	opens := h.device.Opens()
	require.Len(t, opens, 2)
	assert.Equal(t, capture.FacingUser, opens[0].Facing)
	assert.Equal(t, capture.FacingEnvironment, opens[1].Facing)
	assert.Equal(t, 1, h.device.OpenStreams())

	err := h.ctrl.Back()
	require.NoError(t, err)
	assert.Equal(t, 0, h.device.OpenStreams())
}

func TestController_SwitchFacingFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.enterCapturing(t)
	h.device.OpenErr = errors.New("NotFoundError")

	require.NoError(t, h.ctrl.SwitchFacing())
	h.ctrl.Wait()

	status := h.ctrl.CameraStatus()
	assert.False(t, status.Ready)
	require.NotNil(t, status.Error)
	assert.Equal(t, apperrors.ErrorTypePermission, status.Error.Type)
	assert.Equal(t, 0, h.device.OpenStreams())
}

func TestController_StaleResultGuard(t *testing.T) {
	h := newHarness(t, nil)
	releaseFirst := make(chan struct{})
	h.client.onFile = func(ctx context.Context, file validation.UploadedFile) (*models.AnalysisResponse, error) {
		if file.Name == "first.jpg" {
			if err := blockUntil(ctx, releaseFirst); err != nil {
				return nil, err
			}
			return result("First"), nil
		}
		return result("Second"), nil
	}

	first := jpegFile(10)
	first.Name = "first.jpg"
	second := jpegFile(10)
	second.Name = "second.jpg"

	require.NoError(t, h.ctrl.RequestUpload())
	require.NoError(t, h.ctrl.SubmitFile(first))
	require.NoError(t, h.ctrl.Reset())
	assert.Equal(t, ModeIdle, h.ctrl.Session().Mode)

	require.NoError(t, h.ctrl.RequestUpload())
	require.NoError(t, h.ctrl.SubmitFile(second))
	waitForMode(t, h.ctrl, ModeResultsReady)

	close(releaseFirst)
	h.ctrl.Wait()

	s := h.ctrl.Session()
	assert.Equal(t, ModeResultsReady, s.Mode)
	assert.Equal(t, "Second", s.Result.Analysis.Season)
	assert.Equal(t, 1, h.events.count(observer.StaleDiscarded))
}

func TestController_StaleResultGuardEitherOrder(t *testing.T) {
	// The stale request resolves before the live one here
	h := newHarness(t, nil)
	releaseSecond := make(chan struct{})
	firstDone := make(chan struct{})
	h.client.onFile = func(ctx context.Context, file validation.UploadedFile) (*models.AnalysisResponse, error) {
		if file.Name == "second.jpg" {
			if err := blockUntil(ctx, releaseSecond); err != nil {
				return nil, err
			}
			return result("Second"), nil
		}
		defer close(firstDone)
		return result("First"), nil
	}

	first := jpegFile(10)
	first.Name = "first.jpg"
	second := jpegFile(10)
	second.Name = "second.jpg"

	require.NoError(t, h.ctrl.RequestUpload())
	require.NoError(t, h.ctrl.SubmitFile(first))
	require.NoError(t, h.ctrl.Reset())
	require.NoError(t, h.ctrl.RequestUpload())
	require.NoError(t, h.ctrl.SubmitFile(second))

	select {
	case <-firstDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the first request")
	}
	require.Eventually(t, func() bool { return h.events.count(observer.StaleDiscarded) == 1 }, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, ModeAnalyzing, h.ctrl.Session().Mode, "a stale result does not resolve the live submission")

	close(releaseSecond)
	h.ctrl.Wait()
	assert.Equal(t, "Second", h.ctrl.Session().Result.Analysis.Season)
}

func TestController_CloseUnblocksPendingAnalysis(t *testing.T) {
	h := newHarness(t, nil)
	never := make(chan struct{})
	h.client.onFile = func(ctx context.Context, file validation.UploadedFile) (*models.AnalysisResponse, error) {
		if err := blockUntil(ctx, never); err != nil {
			return nil, err
		}
		return result("Soft Autumn"), nil
	}

	require.NoError(t, h.ctrl.RequestUpload())
	require.NoError(t, h.ctrl.SubmitFile(jpegFile(10)))

	closed := make(chan struct{})
	go func() {
		h.ctrl.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close waited on an analysis that can only end by cancellation")
	}
	h.ctrl.Wait()
	assert.Equal(t, ModeAnalyzing, h.ctrl.Session().Mode, "outcomes after close are discarded")
}

func TestController_StaleFailureAfterReset(t *testing.T) {
	h := newHarness(t, nil)
	release := make(chan struct{})
	h.client.onFile = func(ctx context.Context, file validation.UploadedFile) (*models.AnalysisResponse, error) {
		if err := blockUntil(ctx, release); err != nil {
			return nil, err
		}
		return nil, apperrors.NewAnalysisError(http.StatusUnprocessableEntity, "No face detected")
	}

	require.NoError(t, h.ctrl.RequestUpload())
	require.NoError(t, h.ctrl.SubmitFile(jpegFile(10)))
	before := h.ctrl.Session().ID
	require.NoError(t, h.ctrl.Reset())
	after := h.ctrl.Session()

	close(release)
	h.ctrl.Wait()

	s := h.ctrl.Session()
	assert.Equal(t, after, s)
	assert.Equal(t, ModeIdle, s.Mode)
	assert.Nil(t, s.Error)
	assert.NotEqual(t, before, s.ID, "reset starts a fresh session")
}

func TestController_SingleFlight(t *testing.T) {
	h := newHarness(t, nil)
	release := make(chan struct{})
	h.client.onFile = func(ctx context.Context, file validation.UploadedFile) (*models.AnalysisResponse, error) {
		if err := blockUntil(ctx, release); err != nil {
			return nil, err
		}
		return result("Soft Autumn"), nil
	}

	require.NoError(t, h.ctrl.RequestUpload())
	require.NoError(t, h.ctrl.SubmitFile(jpegFile(10)))

	assert.True(t, errors.Is(h.ctrl.SubmitFile(jpegFile(10)), ErrSubmissionInFlight))
	assert.True(t, errors.Is(h.ctrl.CaptureFrame(), ErrSubmissionInFlight))

	close(release)
	h.ctrl.Wait()

	files, _ := h.client.calls()
	assert.Equal(t, 1, files, "a second submission is rejected, not queued")
	assert.Equal(t, ModeResultsReady, h.ctrl.Session().Mode)
}

func TestController_SubmitInvalidFile(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.RequestUpload())
	before := h.ctrl.Session()

	err := h.ctrl.SubmitFile(validation.UploadedFile{Name: "notes.pdf", MIMEType: "application/pdf", SizeBytes: 3, Data: []byte("pdf")})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	err = h.ctrl.SubmitFile(jpegFile(int(validation.MaxUploadBytes) + 1))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	assert.Equal(t, before, h.ctrl.Session())
	files, _ := h.client.calls()
	assert.Equal(t, 0, files)
}

func TestController_NetworkFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.client.onFile = func(ctx context.Context, file validation.UploadedFile) (*models.AnalysisResponse, error) {
		return nil, apperrors.NewNetworkError("could not reach the analysis service", errors.New("connection refused"))
	}

	require.NoError(t, h.ctrl.RequestUpload())
	require.NoError(t, h.ctrl.SubmitFile(jpegFile(10)))
	h.ctrl.Wait()

	s := h.ctrl.Session()
	require.Equal(t, ModeFailed, s.Mode)
	assert.Equal(t, apperrors.ErrorTypeNetwork, s.Error.Type)
	assert.Equal(t, 1, h.events.count(observer.AnalysisFailed))
}

func TestController_ExportFailureKeepsSession(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.renderer = failingRenderer{}

	_, err := h.ctrl.Export()
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	require.NoError(t, h.ctrl.RequestUpload())
	require.NoError(t, h.ctrl.SubmitFile(jpegFile(10)))
	h.ctrl.Wait()
	before := h.ctrl.Session()

	_, err = h.ctrl.Export()
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRender))
	assert.Equal(t, before, h.ctrl.Session())
}

func TestController_SessionIsACopy(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.RequestUpload())
	require.NoError(t, h.ctrl.SubmitFile(jpegFile(10)))
	h.ctrl.Wait()

	s := h.ctrl.Session()
	s.Result.Analysis.Season = "tampered"
	assert.Equal(t, "Soft Autumn", h.ctrl.Session().Result.Analysis.Season)
}

func TestController_Closed(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Close()
	h.ctrl.Close()

	assert.True(t, errors.Is(h.ctrl.RequestUpload(), ErrClosed))
	assert.True(t, errors.Is(h.ctrl.Reset(), ErrClosed))
}

func TestController_InvalidTransitionsNeverMutate(t *testing.T) {
	h := newHarness(t, nil)
	var mu sync.Mutex
	n := 0
	h.client.onFile = func(ctx context.Context, file validation.UploadedFile) (*models.AnalysisResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n%2 == 0 {
			return nil, apperrors.NewAnalysisError(http.StatusUnprocessableEntity, "No face detected")
		}
		return result("Bright Spring"), nil
	}

	ops := []struct {
		name string
		run  func(c *Controller) error
	}{
		{"requestCamera", func(c *Controller) error { return c.RequestCamera() }},
		{"requestUpload", func(c *Controller) error { return c.RequestUpload() }},
		{"accept", func(c *Controller) error { return c.Consent(consent.Decision{Accepted: true}) }},
		{"decline", func(c *Controller) error { return c.Consent(consent.Decision{Accepted: false}) }},
		{"capture", func(c *Controller) error { return c.CaptureFrame() }},
		{"submit", func(c *Controller) error { return c.SubmitFile(jpegFile(64)) }},
		{"submitInvalid", func(c *Controller) error { return c.SubmitFile(jpegFile(0)) }},
		{"switch", func(c *Controller) error { return c.SwitchFacing() }},
		{"back", func(c *Controller) error { return c.Back() }},
		{"retry", func(c *Controller) error { return c.Retry() }},
		{"reset", func(c *Controller) error { return c.Reset() }},
		{"export", func(c *Controller) error { _, err := c.Export(); return err }},
	}

	rng := rand.New(rand.NewSource(42))
	for step := 0; step < 400; step++ {
		op := ops[rng.Intn(len(ops))]
		before := h.ctrl.Session()

		err := op.run(h.ctrl)
		h.ctrl.Wait()
		after := h.ctrl.Session()

		require.True(t, after.Mode.Valid(), "step %d (%s): unknown mode %q", step, op.name, after.Mode)
		require.False(t, after.Error != nil && after.Result != nil, "step %d (%s): error and result both set", step, op.name)
		if after.Mode != ModeCapturing {
			require.Equal(t, 0, h.device.OpenStreams(), "step %d (%s): camera held outside Capturing", step, op.name)
		}
		if after.Mode == ModeIdle {
			require.Nil(t, after.Error)
			require.Nil(t, after.Result)
		}

		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrSubmissionInFlight) ||
			apperrors.IsType(err, apperrors.ErrorTypeValidation) {
			require.Equal(t, before, after, "step %d (%s): rejected event changed the session", step, op.name)
		}
	}
}
