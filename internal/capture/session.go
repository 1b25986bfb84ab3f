package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "go-tonesense/internal/errors"
	"go-tonesense/internal/logger"
	"go-tonesense/pkg/validation"
)

// JPEGQuality is the still-image compression quality for captures
const JPEGQuality = 90

const (
	warmupAttempts = 30
	warmupInterval = 33 * time.Millisecond
)

// ErrNotReady is returned by CaptureFrame before a stream is ready
var ErrNotReady = apperrors.NewPreconditionError("camera is not ready", nil)

var errNoFrame = errors.New("no frame available")

// CapturedImage is a single still encoded as a JPEG data URL
type CapturedImage struct {
	EncodedData string `json:"encoded_data"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`

	frame image.Image
}

// Image returns the decoded frame the capture was encoded from
func (c *CapturedImage) Image() image.Image {
	return c.frame
}

// Status is the inline state of the capture view
type Status struct {
	Ready  bool   `json:"ready"`
	Facing Facing `json:"facing"`
}

// Acquisition is an opened stream that has produced its first frame.
// Closing it is idempotent.
type Acquisition struct {
	stream Stream
	facing Facing
	once   sync.Once
}

// Facing returns the facing mode the stream was opened with
func (a *Acquisition) Facing() Facing {
	return a.facing
}

// Close stops the stream
func (a *Acquisition) Close() error {
	var err error
	a.once.Do(func() {
		err = a.stream.Close()
	})
	return err
}

// Session owns at most one live camera stream
type Session struct {
	device Device

	mu      sync.Mutex
	current *Acquisition
	facing  Facing
}

// NewSession creates a capture session on device, starting user-facing
func NewSession(device Device) *Session {
	return &Session{device: device, facing: FacingUser}
}

// Open requests a video-only stream and waits for its first decodable
// frame. The stream is returned unattached; the caller either attaches
// it or closes it.
func (s *Session) Open(ctx context.Context, facing Facing) (*Acquisition, error) {
	if !facing.Valid() {
		return nil, apperrors.NewValidationError("unknown facing mode "+string(facing), nil)
	}

	stream, err := s.device.Open(ctx, DefaultConstraints(facing))
	if err != nil {
		return nil, asPermissionError("camera is unavailable", err)
	}

	if err := waitForFrame(ctx, stream); err != nil {
		if closeErr := stream.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close camera stream")
		}
		return nil, asPermissionError("camera did not produce a frame", err)
	}

	return &Acquisition{stream: stream, facing: facing}, nil
}

// Attach makes acq the live stream, releasing any previous one
func (s *Session) Attach(acq *Acquisition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current != acq {
		s.closeCurrent()
	}
	s.current = acq
	s.facing = acq.facing

	logger.WithField("facing", acq.facing).Info("Camera stream ready")
}

// Switch releases the current stream and flips the facing mode. The
// caller opens the returned facing next; a failed open leaves the
// session released on the new facing.
func (s *Session) Switch() Facing {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeCurrent()
	s.facing = s.facing.Opposite()
	logger.WithField("facing", s.facing).Debug("Camera facing switched")
	return s.facing
}

// CaptureFrame encodes the current frame at native resolution
func (s *Session) CaptureFrame() (*CapturedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, ErrNotReady
	}

	frame, err := s.current.stream.Read()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read camera frame", err)
	}
	return Encode(frame)
}

// Release stops the stream if one is held. Safe to call repeatedly and
// before any acquisition.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCurrent()
}

// Status reports readiness and the current facing mode
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Ready: s.current != nil, Facing: s.facing}
}

func (s *Session) closeCurrent() {
	if s.current == nil {
		return
	}
	if err := s.current.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close camera stream")
	}
	logger.WithField("facing", s.current.facing).Debug("Camera stream released")
	s.current = nil
}

// Encode compresses frame to a JPEG data URL
func Encode(frame image.Image) (*CapturedImage, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, apperrors.NewInternalError("camera frame is empty", nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, apperrors.NewInternalError("failed to encode camera frame", err)
	}

	bounds := frame.Bounds()
	logger.WithFields(logrus.Fields{
		"width":  bounds.Dx(),
		"height": bounds.Dy(),
		"bytes":  buf.Len(),
	}).Debug("Frame captured")

	return &CapturedImage{
		EncodedData: validation.DataURL("image/jpeg", buf.Bytes()),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		frame:       frame,
	}, nil
}

func waitForFrame(ctx context.Context, stream Stream) error {
	lastErr := errNoFrame
	for i := 0; i < warmupAttempts; i++ {
		_, err := stream.Read()
		if err == nil {
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(warmupInterval):
		}
	}
	return lastErr
}

func asPermissionError(message string, err error) error {
	if apperrors.IsType(err, apperrors.ErrorTypePermission) {
		return err
	}
	return apperrors.NewPermissionError(message, err)
}
