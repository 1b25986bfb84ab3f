//go:build !gocv
// +build !gocv

package capture

import (
	"context"

	apperrors "go-tonesense/internal/errors"
)

// VideoDevice is the camera device placeholder for builds without OpenCV
type VideoDevice struct {
	userIndex        int
	environmentIndex int
}

// NewVideoDevice creates a device that reports every camera as unavailable
func NewVideoDevice(userIndex, environmentIndex int) *VideoDevice {
	return &VideoDevice{userIndex: userIndex, environmentIndex: environmentIndex}
}

// Open always fails if the build does not have the gocv tag
func (d *VideoDevice) Open(context.Context, Constraints) (Stream, error) {
	return nil, apperrors.NewPermissionError("camera support is not built in (rebuild with -tags gocv)", nil)
}
