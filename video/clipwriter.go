package video

import (
	"errors"
	"fmt"

	"github.com/Kim-Ziho/doorbell-camera/clipwriter"
	"github.com/Kim-Ziho/doorbell-camera/frame"
	"github.com/Kim-Ziho/doorbell-camera/logging"
	"github.com/Kim-Ziho/doorbell-camera/recording"
	"gocv.io/x/gocv"
)

// NewGoCVClipWriter returns the clip writer used with a real camera: the codec
// ladder over gocv VideoWriters, behind the bounded async hand-off.
func NewGoCVClipWriter(settings clipwriter.ClipWriterSettings, logger logging.Logger) recording.ClipWriter {
	ladder := clipwriter.NewLadderWriter(settings.Directory, settings.Ladder, OpenGoCVSink, logger)
	return clipwriter.NewAsyncWriter(ladder, settings.Async, logger)
}

// OpenGoCVSink is a clipwriter.SinkOpener backed by gocv.VideoWriter
func OpenGoCVSink(path string, codec clipwriter.Codec, req recording.OpenRequest) (recording.Sink, error) {
	if req.Size.IsEmpty() {
		return nil, fmt.Errorf("cannot open writer for empty frame size %s", req.Size)
	}

	writer, err := gocv.VideoWriterFile(path, codec.FourCC, req.FPS, req.Size.Width, req.Size.Height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create video writer: %w", err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, errors.New("video writer did not open")
	}

	return &gocvSink{writer: writer, path: path, size: req.Size}, nil
}

type gocvSink struct {
	writer *gocv.VideoWriter
	path   string
	size   frame.Size
}

func (s *gocvSink) Write(f *frame.Frame) error {
	if f.Size != s.size {
		return fmt.Errorf("frame %d is %s, writer expects %s", f.Seq, f.Size, s.size)
	}
	img, err := frameToMat(f)
	if err != nil {
		return err
	}
	defer img.Close()
	return s.writer.Write(img)
}

func (s *gocvSink) Close() error {
	return s.writer.Close()
}

func (s *gocvSink) Path() string { return s.path }
