package exr

import (
	"errors"
	"fmt"
	"sort"
)

// FrameBuffer errors
var (
	ErrInvalidSlice    = errors.New("exr: invalid slice configuration")
	ErrChannelNotFound = errors.New("exr: channel not found")
)

// FrameBuffer maps channel names to full-resolution float32 planes of
// width*height values in row-major order.
type FrameBuffer struct {
	width, height int
	planes        map[string][]float32
}

// NewFrameBuffer creates an empty frame buffer for a width x height image.
func NewFrameBuffer(width, height int) *FrameBuffer {
	return &FrameBuffer{
		width:  width,
		height: height,
		planes: make(map[string][]float32),
	}
}

// Width returns the frame buffer width.
func (fb *FrameBuffer) Width() int { return fb.width }

// Height returns the frame buffer height.
func (fb *FrameBuffer) Height() int { return fb.height }

// Set attaches a plane to a channel name. The slice is not copied.
func (fb *FrameBuffer) Set(name string, plane []float32) error {
	if name == "" {
		return fmt.Errorf("%w: empty channel name", ErrInvalidSlice)
	}
	if len(plane) != fb.width*fb.height {
		return fmt.Errorf("%w: channel %q has %d values, want %d",
			ErrInvalidSlice, name, len(plane), fb.width*fb.height)
	}
	fb.planes[name] = plane
	return nil
}

// Get returns the plane for a channel, or nil.
func (fb *FrameBuffer) Get(name string) []float32 {
	return fb.planes[name]
}

// Names returns the channel names in sorted order.
func (fb *FrameBuffer) Names() []string {
	names := make([]string, 0, len(fb.planes))
	for n := range fb.planes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
