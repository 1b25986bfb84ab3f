package capture

import (
	"context"
	"image"
)

// Facing selects between the user-facing and environment-facing camera
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Opposite returns the other facing mode
func (f Facing) Opposite() Facing {
	if f == FacingEnvironment {
		return FacingUser
	}
	return FacingEnvironment
}

// Valid reports whether f is a known facing mode
func (f Facing) Valid() bool {
	return f == FacingUser || f == FacingEnvironment
}

// Ideal stream resolution requested from devices
const (
	IdealWidth  = 1280
	IdealHeight = 720
)

// Constraints describe the requested video-only stream
type Constraints struct {
	Facing Facing
	Width  int
	Height int
}

// DefaultConstraints returns the 1280x720 ideal for the given facing mode
func DefaultConstraints(facing Facing) Constraints {
	return Constraints{Facing: facing, Width: IdealWidth, Height: IdealHeight}
}

// Device opens camera streams. A denied or missing camera must be
// reported as a permission error.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live video stream. Read returns the current frame at the
// stream's native resolution; Close stops the underlying hardware.
type Stream interface {
	Read() (image.Image, error)
	Close() error
}
