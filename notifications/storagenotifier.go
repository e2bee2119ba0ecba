package notifications

import (
	"fmt"
	"sync"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/logging"
)

type StorageNotifier interface {
	// NotifyCapacityReached reports that old clips were deleted to make room.
	NotifyCapacityReached(usedMegaBytes, totalMegaBytes int64) error
	// NotifyCapacityWarning reports that usage is approaching the limit.
	NotifyCapacityWarning(usedMegaBytes, totalMegaBytes int64) error
	// ShouldWarn reports whether usage is above the warning threshold.
	ShouldWarn(usedMegaBytes, totalMegaBytes int64) bool
}

type nopStorageNotifier struct{}

var NopStorageNotifier StorageNotifier = &nopStorageNotifier{}

func (n *nopStorageNotifier) NotifyCapacityReached(usedMegaBytes, totalMegaBytes int64) error {
	return nil
}

func (n *nopStorageNotifier) NotifyCapacityWarning(usedMegaBytes, totalMegaBytes int64) error {
	return nil
}

func (n *nopStorageNotifier) ShouldWarn(usedMegaBytes, totalMegaBytes int64) bool {
	return false
}

type StorageNotificationSettings struct {
	Recipient        string
	MinInterval      time.Duration
	WarningThreshold float64
}

type emailStorageNotifier struct {
	settings StorageNotificationSettings
	sender   EmailSender
	logger   logging.Logger
	now      func() time.Time

	mu          sync.Mutex
	lastReached time.Time
	lastWarning time.Time
}

func NewEmailStorageNotifier(settings StorageNotificationSettings, sender EmailSender, logger logging.Logger) StorageNotifier {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &emailStorageNotifier{
		settings: settings,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
	}
}

func (n *emailStorageNotifier) ShouldWarn(usedMegaBytes, totalMegaBytes int64) bool {
	if totalMegaBytes <= 0 || n.settings.WarningThreshold <= 0 {
		return false
	}
	return float64(usedMegaBytes)/float64(totalMegaBytes) >= n.settings.WarningThreshold
}

func (n *emailStorageNotifier) NotifyCapacityReached(usedMegaBytes, totalMegaBytes int64) error {
	subject := "Doorbell camera storage capacity reached"
	body := fmt.Sprintf("The clip storage limit has been reached.\n\nUsed: %d MB\nTotal: %d MB\n\nThe oldest clips are now deleted to make room for new ones.",
		usedMegaBytes, totalMegaBytes)
	return n.send(&n.lastReached, subject, body)
}

func (n *emailStorageNotifier) NotifyCapacityWarning(usedMegaBytes, totalMegaBytes int64) error {
	subject := "Doorbell camera storage capacity warning"
	body := fmt.Sprintf("Clip storage is nearing its limit.\n\nUsed: %d MB\nTotal: %d MB\n\nOld clips will be deleted once the limit is reached.",
		usedMegaBytes, totalMegaBytes)
	return n.send(&n.lastWarning, subject, body)
}

func (n *emailStorageNotifier) send(last *time.Time, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !last.IsZero() && n.now().Sub(*last) < n.settings.MinInterval {
		n.logger.Info("Skipping storage notification due to rate limiting.", "subject", subject)
		return nil
	}

	n.logger.Info("Sending storage notification.", "subject", subject, "recipient", n.settings.Recipient)
	if err := n.sender.SendEmail(n.settings.Recipient, subject, body); err != nil {
		n.logger.Error("Failed to send storage notification.", "error", err)
		return err
	}

	*last = n.now()
	return nil
}
