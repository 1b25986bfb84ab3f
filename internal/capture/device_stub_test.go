//go:build !gocv
// +build !gocv

package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "go-tonesense/internal/errors"
)

func TestVideoDevice_UnavailableWithoutOpenCV(t *testing.T) {
	device := NewVideoDevice(0, 1)

	stream, err := device.Open(context.Background(), Constraints{Facing: FacingUser, Width: 1280, Height: 720})
	assert.Nil(t, stream)
	if !apperrors.IsType(err, apperrors.ErrorTypePermission) {
		t.Errorf("Expected a permission error, got %v", err)
	}
}
