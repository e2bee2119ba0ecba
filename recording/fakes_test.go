package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/frame"
	motiondetection "github.com/Kim-Ziho/doorbell-camera/motion-detection"
	"github.com/stretchr/testify/require"
)

const (
	high = 0.05
	low  = 0.0
)

type fakeSink struct {
	path     string
	origin   Origin
	seqs     []uint64
	closed   int
	writeErr error
	closeErr error
}

func (s *fakeSink) Write(f *frame.Frame) error {
	if s.closed > 0 {
		return errors.New("write after close")
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	s.seqs = append(s.seqs, f.Seq)
	return nil
}

func (s *fakeSink) Close() error {
	s.closed++
	return s.closeErr
}

func (s *fakeSink) Path() string { return s.path }

// fakeWriter records every open and fails when openErr is set
type fakeWriter struct {
	t        *testing.T
	sinks    []*fakeSink
	requests []OpenRequest
	openErr  error
	closeErr error
}

func (w *fakeWriter) Open(req OpenRequest) (Sink, error) {
	for _, s := range w.sinks {
		require.Equal(w.t, 1, s.closed, "a new sink opened while %s is still open", s.path)
	}
	w.requests = append(w.requests, req)
	if w.openErr != nil {
		return nil, w.openErr
	}
	s := &fakeSink{
		path:     fmt.Sprintf("clip-%d-%s", len(w.sinks), req.Origin),
		origin:   req.Origin,
		closeErr: w.closeErr,
	}
	w.sinks = append(w.sinks, s)
	return s, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (r *eventRecorder) closed() []*ClipSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ClipSummary
	for _, e := range r.events {
		if e.Kind == EventClipClosed {
			out = append(out, e.Clip)
		}
	}
	return out
}

// scriptedDetector returns ratios[seq], or 0 past the end of the script
type scriptedDetector struct {
	ratios []float64
	errAt  map[uint64]error
}

func (d *scriptedDetector) Evaluate(f *frame.Frame) (motiondetection.Evaluation, error) {
	if err, ok := d.errAt[f.Seq]; ok {
		return motiondetection.Evaluation{Ratio: 1}, err
	}
	if int(f.Seq) < len(d.ratios) {
		return motiondetection.Evaluation{Ratio: d.ratios[f.Seq]}, nil
	}
	return motiondetection.Evaluation{}, nil
}

func (d *scriptedDetector) Close() error { return nil }

// queuedCommands hands out one command per Poll, keyed by poll count
type queuedCommands struct {
	at    map[int]Command
	polls int
}

func (q *queuedCommands) Poll() Command {
	cmd := q.at[q.polls]
	q.polls++
	return cmd
}

// failingSource yields frames then fails with err
type failingSource struct {
	*frame.SliceSource
	remaining int
	err       error
}

func (s *failingSource) Next(ctx context.Context) (*frame.Frame, error) {
	if s.remaining == 0 {
		return nil, s.err
	}
	s.remaining--
	return s.SliceSource.Next(ctx)
}

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testSize() frame.Size { return frame.Size{Width: 8, Height: 6} }

func testFrames(n int) []*frame.Frame {
	return frame.Synthetic(n, testSize(), 30, epoch)
}

type harness struct {
	t       *testing.T
	machine *Machine
	writer  *fakeWriter
	events  *eventRecorder
	frames  []*frame.Frame
	next    int
}

func newHarness(t *testing.T, settings RecordingSettings, fps float64, frames int) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		writer: &fakeWriter{t: t},
		events: &eventRecorder{},
		frames: frame.Synthetic(frames, testSize(), fps, epoch),
	}
	ids := 0
	m, err := NewMachine(settings, fps, testSize(), h.writer, MachineOptions{
		Listener: h.events,
		NewClipID: func() string {
			ids++
			return fmt.Sprintf("clip-%d", ids)
		},
	})
	require.NoError(t, err)
	h.machine = m
	return h
}

// step feeds the next frame with the given ratio and command
func (h *harness) step(ratio float64, cmd Command) error {
	h.t.Helper()
	require.Less(h.t, h.next, len(h.frames), "harness ran out of frames")
	f := h.frames[h.next]
	h.next++
	return h.machine.Step(Sample{Frame: f, Ratio: ratio}, cmd)
}

func (h *harness) run(ratios ...float64) {
	h.t.Helper()
	for _, r := range ratios {
		require.NoError(h.t, h.step(r, CommandNone))
	}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func seqRange(from, to uint64) []uint64 {
	var out []uint64
	for s := from; s <= to; s++ {
		out = append(out, s)
	}
	return out
}
