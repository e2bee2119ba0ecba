package frame

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultFrameRate is substituted when a source reports no usable frame rate
	DefaultFrameRate = 30.0
	// MaxFrameRate is the highest frame rate a source may report before it is considered bogus
	MaxFrameRate = 240.0
)

// Size is the fixed width and height of every frame produced by a source
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// IsEmpty reports whether either dimension is unset
func (s Size) IsEmpty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Frame is a captured image. Pixels hold packed BGR24 rows.
// A frame must not be modified after capture; the preroll buffer, the motion
// detector and clip sinks all share the same pixel slice.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Size      Size
	Pixels    []byte
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := *f
	if f.Pixels != nil {
		c.Pixels = make([]byte, len(f.Pixels))
		copy(c.Pixels, f.Pixels)
	}
	return &c
}

// NormalizeFrameRate returns fps when it lies in (0, MaxFrameRate], otherwise fallback.
// A fallback that is itself unusable is replaced by DefaultFrameRate.
func NormalizeFrameRate(fps, fallback float64) float64 {
	if fallback <= 0 || fallback > MaxFrameRate || math.IsNaN(fallback) || math.IsInf(fallback, 0) {
		fallback = DefaultFrameRate
	}
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 || fps > MaxFrameRate {
		return fallback
	}
	return fps
}
