package archiving

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/catalog"
	"github.com/Kim-Ziho/doorbell-camera/common"
	"github.com/Kim-Ziho/doorbell-camera/logging"
	postprocessing "github.com/Kim-Ziho/doorbell-camera/post-processing"
)

// FileEncryptor replaces a file with its encrypted form and returns the new path
type FileEncryptor interface {
	EncryptFile(path string) (string, error)
}

// ClipStore persists catalog entries, making room first when storage is limited
type ClipStore interface {
	Store(ctx context.Context, clip *catalog.Clip) error
}

// Archiver runs the post-close steps for a single clip: transcode, encrypt, catalog.
// Transcoder and encryptor are optional.
type Archiver struct {
	processor postprocessing.PostProcessor
	encryptor FileEncryptor
	store     ClipStore
	logger    logging.Logger
	now       func() time.Time
}

func NewArchiver(processor postprocessing.PostProcessor, encryptor FileEncryptor, store ClipStore, logger logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &Archiver{
		processor: processor,
		encryptor: encryptor,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// Archive processes the job's clip and returns its catalog entry.
// Transcode and encryption failures are logged and the clip is kept as it is.
func (a *Archiver) Archive(ctx context.Context, job *ArchiveJob) (*catalog.Clip, error) {
	summary := job.Clip
	path := summary.Path
	duration := summary.Duration()
	mimeType := common.VideoFormatToMimeType(filepath.Ext(path))

	if a.processor != nil {
		processed, err := a.processor.ProcessVideo(&summary)
		if err != nil {
			a.logger.Warn("post-processing failed, keeping raw clip", "clip_id", summary.ID, "path", path, "error", err)
		} else {
			path = processed.Path
			mimeType = processed.MimeType
			if processed.Duration > 0 {
				duration = processed.Duration
			}
		}
	}

	encrypted := false
	if a.encryptor != nil {
		encPath, err := a.encryptor.EncryptFile(path)
		if err != nil {
			a.logger.Error("encryption failed, keeping plaintext clip", "clip_id", summary.ID, "path", path, "error", err)
		} else {
			path = encPath
			encrypted = true
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archived clip: %w", err)
	}

	clip := &catalog.Clip{
		ID:             summary.ID,
		Origin:         string(summary.Origin),
		Path:           path,
		MimeType:       mimeType,
		OpenedAt:       summary.OpenedAt,
		ClosedAt:       summary.ClosedAt,
		Duration:       duration,
		Frames:         summary.Frames,
		PrerollFrames:  summary.PrerollFrames,
		PostrollFrames: summary.PostrollFrames,
		FrameRate:      summary.FrameRate,
		Reason:         string(summary.Reason),
		SizeBytes:      info.Size(),
		Encrypted:      encrypted,
		CreatedAt:      a.now().UTC(),
	}

	if a.store != nil {
		if err := a.store.Store(ctx, clip); err != nil {
			return nil, fmt.Errorf("failed to catalog clip: %w", err)
		}
	}

	a.logger.Info("clip archived", "clip_id", clip.ID, "path", clip.Path, "size_bytes", clip.SizeBytes, "encrypted", encrypted)
	return clip, nil
}
