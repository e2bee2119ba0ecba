package notifications

import (
	"fmt"
	"sync"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/logging"
)

type MotionNotifier interface {
	// NotifyMotionDetected sends a notification for a clip opened by motion.
	NotifyMotionDetected(clipID string, at time.Time) error
}

type nopMotionNotifier struct{}

var NopMotionNotifier MotionNotifier = &nopMotionNotifier{}

func (n *nopMotionNotifier) NotifyMotionDetected(clipID string, at time.Time) error {
	return nil
}

type MotionNotificationSettings struct {
	Recipient   string
	CameraName  string
	MinInterval time.Duration
}

type emailMotionNotifier struct {
	settings MotionNotificationSettings
	sender   EmailSender
	logger   logging.Logger
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewEmailMotionNotifier(settings MotionNotificationSettings, sender EmailSender, logger logging.Logger) MotionNotifier {
	if logger == nil {
		logger = logging.NopLogger
	}
	if settings.CameraName == "" {
		settings.CameraName = "doorbell"
	}
	return &emailMotionNotifier{
		settings: settings,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
	}
}

func (n *emailMotionNotifier) NotifyMotionDetected(clipID string, at time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.last.IsZero() && n.now().Sub(n.last) < n.settings.MinInterval {
		n.logger.Info("Skipping motion notification due to rate limiting.", "clip_id", clipID)
		return nil
	}

	subject := fmt.Sprintf("Motion at %s", n.settings.CameraName)
	body := fmt.Sprintf("Motion was detected by camera '%s' at %s.\n\nA clip is being recorded: %s",
		n.settings.CameraName,
		at.UTC().Format("2006-01-02 15:04:05 UTC"),
		clipID)

	n.logger.Info("Sending motion detection notification.", "clip_id", clipID, "recipient", n.settings.Recipient)
	if err := n.sender.SendEmail(n.settings.Recipient, subject, body); err != nil {
		n.logger.Error("Failed to send motion detection notification.", "error", err, "clip_id", clipID)
		return err
	}

	n.last = n.now()
	return nil
}
