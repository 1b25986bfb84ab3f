// Package capturetest provides an in-memory camera for tests.
package capturetest

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"go-tonesense/internal/capture"
)

// Device is a fake camera. Streams serve Frame, or fail every Open with
// OpenErr. Gate, when set, blocks Open until it is closed.
type Device struct {
	mu      sync.Mutex
	OpenErr error
	Frame   image.Image
	Gate    chan struct{}
	streams []*Stream
	opens   []capture.Constraints
}

// NewDevice returns a device serving a 640x480 skin-toned frame
func NewDevice() *Device {
	return &Device{Frame: PortraitFrame(640, 480)}
}

// Open implements capture.Device
func (d *Device) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	d.mu.Lock()
	gate := d.Gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.opens = append(d.opens, c)
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := &Stream{frame: d.Frame}
	d.streams = append(d.streams, s)
	return s, nil
}

// Opens returns the constraints of every Open call
func (d *Device) Opens() []capture.Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]capture.Constraints(nil), d.opens...)
}

// Streams returns every stream handed out
func (d *Device) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.streams...)
}

// OpenStreams counts streams not yet closed
func (d *Device) OpenStreams() int {
	n := 0
	for _, s := range d.Streams() {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// Stream is a fake video stream
type Stream struct {
	mu     sync.Mutex
	frame  image.Image
	closes int
}

// Read implements capture.Stream
func (s *Stream) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return nil, errors.New("stream is closed")
	}
	if s.frame == nil {
		return nil, errors.New("no frame")
	}
	return s.frame, nil
}

// Close implements capture.Stream
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Closed reports whether Close was called
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes > 0
}

// Closes returns how many times Close was called
func (s *Stream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// PortraitFrame draws a sharp warm checker pattern
func PortraitFrame(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	light := color.RGBA{R: 224, G: 172, B: 140, A: 255}
	dark := color.RGBA{R: 150, G: 100, B: 80, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x/4+y/4)%2 == 0 {
				img.Set(x, y, light)
			} else {
				img.Set(x, y, dark)
			}
		}
	}
	return img
}
