// Package preroll keeps the most recent frames so that a clip can start
// slightly before the moment recording was decided.
package preroll

import (
	"math"

	"github.com/Kim-Ziho/doorbell-camera/frame"
)

// CapacityFor returns ceil(seconds * fps) with a minimum of one frame.
// The frame rate is normalised first, so a bogus device rate falls back to fallbackFPS.
func CapacityFor(seconds, fps, fallbackFPS float64) int {
	fps = frame.NormalizeFrameRate(fps, fallbackFPS)
	if seconds <= 0 || math.IsNaN(seconds) {
		return 1
	}
	n := int(math.Ceil(seconds * fps))
	if n < 1 {
		return 1
	}
	return n
}

// Buffer is a fixed capacity FIFO of frames. It is not safe for concurrent use;
// the processing loop owns it.
type Buffer struct {
	frames []*frame.Frame
	head   int // index of the oldest frame
	count  int
}

func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{frames: make([]*frame.Frame, capacity)}
}

// Push appends f, evicting the oldest frame when the buffer is full.
func (b *Buffer) Push(f *frame.Frame) {
	capacity := len(b.frames)
	if b.count < capacity {
		b.frames[(b.head+b.count)%capacity] = f
		b.count++
		return
	}
	b.frames[b.head] = f
	b.head = (b.head + 1) % capacity
}

// Snapshot returns the buffered frames oldest first in a new slice.
// The buffer itself is left untouched.
func (b *Buffer) Snapshot() []*frame.Frame {
	out := make([]*frame.Frame, b.count)
	capacity := len(b.frames)
	for i := 0; i < b.count; i++ {
		out[i] = b.frames[(b.head+i)%capacity]
	}
	return out
}

// Clear drops all buffered frames. The capacity is kept.
func (b *Buffer) Clear() {
	for i := range b.frames {
		b.frames[i] = nil
	}
	b.head = 0
	b.count = 0
}

func (b *Buffer) Len() int { return b.count }

func (b *Buffer) Cap() int { return len(b.frames) }
