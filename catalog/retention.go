package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/Kim-Ziho/doorbell-camera/logging"
	"github.com/Kim-Ziho/doorbell-camera/notifications"
)

const bytesInMegabyte = 1024 * 1024

// RetentionManager keeps the catalogued clips within a storage limit by
// deleting the oldest clips, file first and then row.
type RetentionManager struct {
	logger     logging.Logger
	repo       ClipRepository
	limitBytes int64
	notifier   notifications.StorageNotifier
	mu         sync.Mutex
}

// NewRetentionManager creates a manager; limitMegabytes <= 0 means unlimited
func NewRetentionManager(repo ClipRepository, limitMegabytes int, logger logging.Logger) *RetentionManager {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &RetentionManager{
		logger:     logger,
		repo:       repo,
		limitBytes: int64(limitMegabytes) * bytesInMegabyte,
		notifier:   notifications.NopStorageNotifier,
	}
}

// SetNotifier replaces the notifier told about deletions and high usage
func (m *RetentionManager) SetNotifier(notifier notifications.StorageNotifier) {
	if notifier == nil {
		notifier = notifications.NopStorageNotifier
	}
	m.mu.Lock()
	m.notifier = notifier
	m.mu.Unlock()
}

// Store makes room for clip and then adds it to the catalog
func (m *RetentionManager) Store(ctx context.Context, clip *Clip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted, err := m.enforce(ctx, clip.SizeBytes, clip.ID)
	if err != nil {
		return err
	}
	if err := m.repo.Add(ctx, clip); err != nil {
		return err
	}
	m.notify(ctx, deleted)
	return nil
}

// Enforce deletes the oldest clips until usage fits the limit and returns how many were removed
func (m *RetentionManager) Enforce(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted, err := m.enforce(ctx, 0, "")
	if err == nil {
		m.notify(ctx, deleted)
	}
	return deleted, err
}

func (m *RetentionManager) notify(ctx context.Context, deleted int) {
	if m.limitBytes <= 0 {
		return
	}
	usage, err := m.repo.GetTotalStorageUsage(ctx)
	if err != nil {
		m.logger.Warn("failed to read storage usage for notification", "error", err)
		return
	}

	usedMB, totalMB := usage/bytesInMegabyte, m.limitBytes/bytesInMegabyte
	switch {
	case deleted > 0:
		_ = m.notifier.NotifyCapacityReached(usedMB, totalMB)
	case m.notifier.ShouldWarn(usedMB, totalMB):
		_ = m.notifier.NotifyCapacityWarning(usedMB, totalMB)
	}
}

func (m *RetentionManager) enforce(ctx context.Context, incoming int64, keepID string) (int, error) {
	if m.limitBytes <= 0 {
		return 0, nil
	}

	usage, err := m.repo.GetTotalStorageUsage(ctx)
	if err != nil {
		return 0, err
	}
	if usage+incoming > m.limitBytes {
		m.logger.Warn("storage limit exceeded, deleting oldest clips", "usage_bytes", usage, "limit_bytes", m.limitBytes)
	}

	deleted := 0
	for usage+incoming > m.limitBytes {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		oldest, err := m.repo.GetOldestClips(ctx, 1)
		if err != nil {
			return deleted, err
		}
		if len(oldest) == 0 || oldest[0].ID == keepID {
			m.logger.Warn("no more clips to delete, but storage limit still exceeded", "usage_bytes", usage)
			break
		}

		clip := oldest[0]
		if err := removeClipFile(clip.Path); err != nil {
			// keep the row so the file is retried on the next pass
			m.logger.Error("failed to remove clip file", "clip_id", clip.ID, "path", clip.Path, "error", err)
			return deleted, err
		}
		if err := m.repo.Delete(ctx, clip.ID); err != nil {
			return deleted, err
		}
		deleted++
		m.logger.Info("deleted oldest clip to free up space", "clip_id", clip.ID, "path", clip.Path)

		if usage, err = m.repo.GetTotalStorageUsage(ctx); err != nil {
			return deleted, err
		}
	}

	return deleted, nil
}

func removeClipFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
