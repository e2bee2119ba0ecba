package recording

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/frame"
	"github.com/Kim-Ziho/doorbell-camera/logging"
	motiondetection "github.com/Kim-Ziho/doorbell-camera/motion-detection"
)

// CommandSource yields at most one pending operator command per call without blocking
type CommandSource interface {
	Poll() Command
}

type noCommands struct{}

func (noCommands) Poll() Command { return CommandNone }

// Loop is the single processing goroutine: it pulls frames, scores them and
// drives the machine. Only Run touches the machine.
type Loop struct {
	source   frame.Source
	detector motiondetection.MotionDetector
	machine  *Machine
	commands CommandSource
	status   *StatusBoard
	logger   logging.Logger
	now      func() time.Time

	framesProcessed uint64
	windowStart     time.Time
	windowFrames    int
	measuredFPS     float64
	lastRatio       float64
}

func NewLoop(
	source frame.Source,
	detector motiondetection.MotionDetector,
	machine *Machine,
	commands CommandSource,
	status *StatusBoard,
	logger logging.Logger,
) *Loop {
	if commands == nil {
		commands = noCommands{}
	}
	if status == nil {
		status = NewStatusBoard()
	}
	if logger == nil {
		logger = logging.NopLogger
	}
	return &Loop{
		source:   source,
		detector: detector,
		machine:  machine,
		commands: commands,
		status:   status,
		logger:   logger,
		now:      time.Now,
	}
}

// Run processes frames until the stream ends, a quit command arrives or ctx is cancelled.
// An open clip is always finalised before Run returns. End of stream and
// cancellation return nil; a failed frame acquisition is returned wrapped.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("processing loop started", "fps", l.machine.Timing().FrameRate)
	l.windowStart = l.now()
	defer l.publish(false)

	for {
		if ctx.Err() != nil {
			return l.stop(ReasonShutdown)
		}

		f, err := l.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return l.stop(ReasonShutdown)
			}
			if errors.Is(err, frame.ErrEndOfStream) {
				l.logger.Info("frame source ended")
				return l.stop(ReasonEndOfStream)
			}
			l.logger.Error("frame acquisition failed", "error", err)
			return errors.Join(fmt.Errorf("frame acquisition failed: %w", err), l.stop(ReasonEndOfStream))
		}

		ratio := 0.0
		if l.detector != nil {
			eval, err := l.detector.Evaluate(f)
			if err != nil {
				l.logger.Warn("motion evaluation failed, treating frame as still", "seq", f.Seq, "error", err)
			} else {
				ratio = motiondetection.ClampRatio(eval.Ratio)
			}
		}
		l.lastRatio = ratio

		cmd := l.commands.Poll()
		if cmd == CommandQuit {
			l.logger.Info("quit requested")
			return l.stop(ReasonShutdown)
		}

		if err := l.machine.Step(Sample{Frame: f, Ratio: ratio}, cmd); err != nil {
			// sink failures are reported per frame and never halt capture
			l.logger.Error("recording step failed", "seq", f.Seq, "error", err)
		}

		l.tick()
		l.publish(true)
	}
}

func (l *Loop) stop(reason CloseReason) error {
	if err := l.machine.Shutdown(reason); err != nil {
		l.logger.Error("failed to finalise clip on stop", "reason", reason, "error", err)
		return err
	}
	l.logger.Info("processing loop stopped", "reason", reason, "frames", l.framesProcessed)
	return nil
}

// tick measures throughput over one-second windows
func (l *Loop) tick() {
	l.framesProcessed++
	l.windowFrames++

	now := l.now()
	elapsed := now.Sub(l.windowStart)
	if elapsed < time.Second {
		return
	}
	l.measuredFPS = float64(l.windowFrames) / elapsed.Seconds()
	l.windowStart = now
	l.windowFrames = 0
	l.logger.Debug("throughput", "fps", l.measuredFPS)
}

func (l *Loop) publish(running bool) {
	l.status.Store(Status{
		MachineStatus:   l.machine.Status(),
		LastRatio:       l.lastRatio,
		FramesProcessed: l.framesProcessed,
		MeasuredFPS:     l.measuredFPS,
		FrameRate:       l.machine.Timing().FrameRate,
		UpdatedAt:       l.now(),
		Running:         running,
	})
}
