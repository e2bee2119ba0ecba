package archiving

import (
	"context"
	"sync"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/catalog"
	"github.com/Kim-Ziho/doorbell-camera/logging"
	"github.com/Kim-Ziho/doorbell-camera/recording"
)

const jobTimeout = 5 * time.Minute

// ArchiveQueue hands closed clips to a background worker
type ArchiveQueue interface {
	// Queue adds a job without blocking. It returns false when the queue is full.
	Queue(job *ArchiveJob) bool

	// Start processes jobs until stopChan is closed, then drains what is left
	Start(stopChan <-chan struct{}, wg *sync.WaitGroup, successCallback func(clip *catalog.Clip))

	// Drain processes remaining jobs during shutdown with timeout
	Drain(timeout time.Duration)
}

type archiveQueue struct {
	archiver     *Archiver
	jobs         chan *ArchiveJob
	drainTimeout time.Duration
	logger       logging.Logger
}

func NewArchiveQueue(archiver *Archiver, bufferSize int, drainTimeout time.Duration, logger logging.Logger) ArchiveQueue {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if logger == nil {
		logger = logging.NopLogger
	}
	return &archiveQueue{
		archiver:     archiver,
		jobs:         make(chan *ArchiveJob, bufferSize),
		drainTimeout: drainTimeout,
		logger:       logger,
	}
}

func (q *archiveQueue) Queue(job *ArchiveJob) bool {
	select {
	case q.jobs <- job:
		q.logger.Info("queued clip for archiving", "clip_id", job.Clip.ID, "path", job.Clip.Path, "origin", job.Clip.Origin)
		return true
	default:
		q.logger.Warn("archive queue full, dropping clip", "clip_id", job.Clip.ID, "path", job.Clip.Path)
		return false
	}
}

func (q *archiveQueue) Start(stopChan <-chan struct{}, wg *sync.WaitGroup, successCallback func(clip *catalog.Clip)) {
	defer wg.Done()

	for {
		select {
		case job := <-q.jobs:
			q.archive(job, successCallback)
		case <-stopChan:
			q.drainWithCallback(q.drainTimeout, successCallback)
			return
		}
	}
}

func (q *archiveQueue) Drain(timeout time.Duration) {
	q.drainWithCallback(timeout, nil)
}

func (q *archiveQueue) drainWithCallback(timeout time.Duration, successCallback func(clip *catalog.Clip)) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case job := <-q.jobs:
			q.archive(job, successCallback)
		case <-timer.C:
			q.logger.Warn("archive queue drain timeout, forcing shutdown", "remaining", len(q.jobs))
			return
		default:
			return
		}
	}
}

func (q *archiveQueue) archive(job *ArchiveJob, successCallback func(clip *catalog.Clip)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	clip, err := q.archiver.Archive(ctx, job)
	if err != nil {
		q.logger.Error("failed to archive clip", "clip_id", job.Clip.ID, "path", job.Clip.Path, "error", err)
		return
	}
	if successCallback != nil {
		successCallback(clip)
	}
}

// ClosedClipListener queues every clip_closed event on q
func ClosedClipListener(q ArchiveQueue) recording.Listener {
	return recording.ListenerFunc(func(e recording.Event) {
		if e.Kind != recording.EventClipClosed || e.Clip == nil {
			return
		}
		q.Queue(&ArchiveJob{Clip: *e.Clip, QueuedAt: time.Now()})
	})
}
