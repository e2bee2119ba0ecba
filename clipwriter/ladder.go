package clipwriter

import (
	"errors"
	"fmt"
	"os"

	"github.com/Kim-Ziho/doorbell-camera/logging"
	"github.com/Kim-Ziho/doorbell-camera/recording"
)

// SinkOpener opens a sink writing codec to path. An error means the codec is
// unusable here and the next rung is tried.
type SinkOpener func(path string, codec Codec, req recording.OpenRequest) (recording.Sink, error)

// LadderWriter is a recording.ClipWriter that names each clip and tries the
// codec ladder in order.
type LadderWriter struct {
	dir    string
	ladder []Codec
	open   SinkOpener
	logger logging.Logger
}

func NewLadderWriter(dir string, ladder []Codec, open SinkOpener, logger logging.Logger) *LadderWriter {
	if len(ladder) == 0 {
		ladder = DefaultCodecLadder
	}
	if logger == nil {
		logger = logging.NopLogger
	}
	return &LadderWriter{dir: dir, ladder: ladder, open: open, logger: logger}
}

func (w *LadderWriter) Open(req recording.OpenRequest) (recording.Sink, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create clip directory %s: %w", w.dir, err)
	}

	var errs []error
	for _, codec := range w.ladder {
		path := ClipPath(w.dir, req.Origin, req.StartedAt, codec.Extension)
		sink, err := w.open(path, codec, req)
		if err == nil {
			w.logger.Info("clip writer opened", "path", path, "codec", codec.FourCC, "size", req.Size.String(), "fps", req.FPS)
			return sink, nil
		}
		w.logger.Warn("codec unavailable, trying next", "codec", codec.FourCC, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", codec.FourCC, err))
		// a writer that failed to open may still have created an empty file
		_ = os.Remove(path)
	}

	return nil, fmt.Errorf("%w: %w", ErrNoCodec, errors.Join(errs...))
}
