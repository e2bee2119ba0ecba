package clipwriter

import "errors"

var (
	// ErrNoCodec means no rung of the codec ladder produced a usable writer
	ErrNoCodec = errors.New("no codec in the ladder could open a writer")
	// ErrWriteTimeout means a frame was dropped because the write queue stayed full
	ErrWriteTimeout = errors.New("clip write queue full, frame dropped")
	// ErrSinkClosed is returned for writes after Close
	ErrSinkClosed = errors.New("clip sink is closed")
)
