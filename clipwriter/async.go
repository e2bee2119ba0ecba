package clipwriter

import (
	"fmt"
	"sync"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/frame"
	"github.com/Kim-Ziho/doorbell-camera/logging"
	"github.com/Kim-Ziho/doorbell-camera/recording"
)

var DefaultAsyncWriterSettings = AsyncWriterSettings{
	QueueSize:    120, // four seconds at 30 fps
	WriteTimeout: 500 * time.Millisecond,
}

type AsyncWriterSettings struct {
	QueueSize    int           // frames buffered per open sink
	WriteTimeout time.Duration // how long Write waits on a full queue, zero waits forever
}

// AsyncWriter wraps a ClipWriter so encoding happens off the capture goroutine.
// Open stays synchronous; each sink gets its own bounded queue drained in order
// by one goroutine.
type AsyncWriter struct {
	inner    recording.ClipWriter
	settings AsyncWriterSettings
	logger   logging.Logger
}

func NewAsyncWriter(inner recording.ClipWriter, settings AsyncWriterSettings, logger logging.Logger) *AsyncWriter {
	if settings.QueueSize <= 0 {
		settings.QueueSize = DefaultAsyncWriterSettings.QueueSize
	}
	if logger == nil {
		logger = logging.NopLogger
	}
	return &AsyncWriter{inner: inner, settings: settings, logger: logger}
}

func (w *AsyncWriter) Open(req recording.OpenRequest) (recording.Sink, error) {
	sink, err := w.inner.Open(req)
	if err != nil {
		return nil, err
	}

	s := &asyncSink{
		inner:   sink,
		queue:   make(chan *frame.Frame, w.settings.QueueSize),
		done:    make(chan struct{}),
		timeout: w.settings.WriteTimeout,
		logger:  w.logger,
	}
	go s.drain()
	return s, nil
}

type asyncSink struct {
	inner   recording.Sink
	queue   chan *frame.Frame
	done    chan struct{}
	timeout time.Duration
	logger  logging.Logger

	closed  bool
	dropped int

	mu        sync.Mutex
	written   int
	failed    int
	firstFail error
}

func (s *asyncSink) Path() string { return s.inner.Path() }

// Write enqueues f. It must not be called concurrently with itself or Close.
func (s *asyncSink) Write(f *frame.Frame) error {
	if s.closed {
		return ErrSinkClosed
	}

	select {
	case s.queue <- f:
		return nil
	default:
	}

	if s.timeout <= 0 {
		s.queue <- f
		return nil
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case s.queue <- f:
		return nil
	case <-timer.C:
		s.dropped++
		return fmt.Errorf("%w: frame %d after %s", ErrWriteTimeout, f.Seq, s.timeout)
	}
}

func (s *asyncSink) drain() {
	defer close(s.done)
	for f := range s.queue {
		err := s.inner.Write(f)
		s.mu.Lock()
		if err != nil {
			s.failed++
			if s.firstFail == nil {
				s.firstFail = err
			}
		} else {
			s.written++
		}
		s.mu.Unlock()
		if err != nil {
			s.logger.Error("failed to encode frame", "path", s.inner.Path(), "seq", f.Seq, "error", err)
		}
	}
}

// Close waits for queued frames to be written, then finalises the inner sink.
func (s *asyncSink) Close() error {
	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true
	close(s.queue)
	<-s.done

	s.mu.Lock()
	written, failed, firstFail := s.written, s.failed, s.firstFail
	s.mu.Unlock()

	if s.dropped > 0 || failed > 0 {
		// the clip is still usable, only shorter
		s.logger.Warn("clip is missing frames", "path", s.inner.Path(),
			"dropped", s.dropped, "failed", failed, "written", written, "first_error", firstFail)
	}

	return s.inner.Close()
}
