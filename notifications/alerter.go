package notifications

import (
	"context"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/logging"
	"github.com/Kim-Ziho/doorbell-camera/recording"
)

type motionAlert struct {
	clipID string
	at     time.Time
}

// MotionAlerter turns auto clip openings into motion notifications.
// OnEvent never blocks; mail is sent from Run.
type MotionAlerter struct {
	notifier MotionNotifier
	alerts   chan motionAlert
	logger   logging.Logger
}

func NewMotionAlerter(notifier MotionNotifier, bufferSize int, logger logging.Logger) *MotionAlerter {
	if notifier == nil {
		notifier = NopMotionNotifier
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if logger == nil {
		logger = logging.NopLogger
	}
	return &MotionAlerter{
		notifier: notifier,
		alerts:   make(chan motionAlert, bufferSize),
		logger:   logger,
	}
}

func (a *MotionAlerter) OnEvent(e recording.Event) {
	if e.Kind != recording.EventClipOpened || e.Origin != recording.OriginAuto {
		return
	}
	select {
	case a.alerts <- motionAlert{clipID: e.ClipID, at: e.At}:
	default:
		a.logger.Warn("motion alert queue full, dropping alert", "clip_id", e.ClipID)
	}
}

// Run sends queued alerts until ctx is done
func (a *MotionAlerter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case alert := <-a.alerts:
			// errors are logged by the notifier
			_ = a.notifier.NotifyMotionDetected(alert.clipID, alert.at)
		}
	}
}
