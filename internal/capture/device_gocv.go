//go:build gocv
// +build gocv

package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	apperrors "go-tonesense/internal/errors"
)

// VideoDevice opens cameras through OpenCV. Facing modes map to device indices.
type VideoDevice struct {
	userIndex        int
	environmentIndex int
}

// NewVideoDevice creates a device mapping user and environment facing to indices
func NewVideoDevice(userIndex, environmentIndex int) *VideoDevice {
	return &VideoDevice{userIndex: userIndex, environmentIndex: environmentIndex}
}

// Open opens the camera for c.Facing and requests the ideal resolution
func (d *VideoDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	index := d.userIndex
	if c.Facing == FacingEnvironment {
		index = d.environmentIndex
	}

	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, apperrors.NewPermissionError(fmt.Sprintf("camera %d is unavailable", index), err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, apperrors.NewPermissionError(fmt.Sprintf("camera %d could not be opened", index), nil)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))

	return &videoStream{vc: vc, mat: gocv.NewMat()}, nil
}

type videoStream struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

func (s *videoStream) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("stream is closed")
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, errNoFrame
	}
	return s.mat.ToImage()
}

func (s *videoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.vc.Close()
}
