package archiving

import (
	"time"

	"github.com/Kim-Ziho/doorbell-camera/recording"
)

// ArchiveJob is one closed clip waiting for post-close handling
type ArchiveJob struct {
	Clip     recording.ClipSummary
	QueuedAt time.Time
}
