package frame

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEndOfStream is returned by a Source when no further frames will be produced.
var ErrEndOfStream = errors.New("end of stream")

type Source interface {
	// Next blocks until the next frame is captured.
	// Any error, including ErrEndOfStream, ends the stream.
	Next(ctx context.Context) (*Frame, error)
	// FrameRate is the rate reported by the device. It may be zero or bogus;
	// callers pass it through NormalizeFrameRate.
	FrameRate() float64
	Size() Size
	Close() error
}

// SliceSource replays a fixed list of frames, then reports ErrEndOfStream.
type SliceSource struct {
	frames []*Frame
	fps    float64
	size   Size

	mu     sync.Mutex
	next   int
	closed bool
}

func NewSliceSource(frames []*Frame, fps float64) *SliceSource {
	s := &SliceSource{frames: frames, fps: fps}
	if len(frames) > 0 {
		s.size = frames[0].Size
	}
	return s
}

func (s *SliceSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.next >= len(s.frames) {
		return nil, ErrEndOfStream
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *SliceSource) FrameRate() float64 { return s.fps }

func (s *SliceSource) Size() Size { return s.size }

func (s *SliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Synthetic builds n blank frames of the given size with sequence numbers 0..n-1
// and timestamps spaced at 1/fps starting from start.
func Synthetic(n int, size Size, fps float64, start time.Time) []*Frame {
	fps = NormalizeFrameRate(fps, DefaultFrameRate)
	interval := time.Duration(float64(time.Second) / fps)
	frames := make([]*Frame, n)
	for i := range frames {
		frames[i] = &Frame{
			Seq:       uint64(i),
			Timestamp: start.Add(time.Duration(i) * interval),
			Size:      size,
		}
	}
	return frames
}

// SyntheticMotion is Synthetic with a bright square sweeping across a dark
// background on frames in [from, to). Outside that window the frames are identical.
func SyntheticMotion(n int, size Size, fps float64, start time.Time, from, to int) []*Frame {
	frames := Synthetic(n, size, fps, start)
	side := max(1, min(size.Width, size.Height)/4)
	for i, f := range frames {
		f.Pixels = make([]byte, size.Width*size.Height*3)
		if i < from || i >= to || size.IsEmpty() {
			continue
		}
		x0 := (i - from) * 4 % max(1, size.Width-side)
		y0 := (size.Height - side) / 2
		for y := y0; y < y0+side && y < size.Height; y++ {
			for x := x0; x < x0+side && x < size.Width; x++ {
				p := (y*size.Width + x) * 3
				f.Pixels[p], f.Pixels[p+1], f.Pixels[p+2] = 255, 255, 255
			}
		}
	}
	return frames
}
