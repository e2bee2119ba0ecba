package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/frame"
	"github.com/Kim-Ziho/doorbell-camera/logging"
	"gocv.io/x/gocv"
)

// ErrNoCamera is returned when none of the candidate devices delivered a frame
var ErrNoCamera = errors.New("no camera could be opened")

const (
	warmupReads    = 10
	warmupInterval = 50 * time.Millisecond
)

// GoCVFrameSource captures BGR frames from a camera index, stream URL or video file
type GoCVFrameSource struct {
	capture *gocv.VideoCapture
	device  string
	isFile  bool
	size    frame.Size
	fps     float64
	img     gocv.Mat
	bgr     gocv.Mat
	seq     uint64
	logger  logging.Logger
}

// OpenGoCVFrameSource tries each device in order and keeps the first that
// opens and returns a frame within the warm-up reads.
func OpenGoCVFrameSource(devices []string, requested frame.Size, logger logging.Logger) (*GoCVFrameSource, error) {
	if logger == nil {
		logger = logging.NopLogger
	}
	if len(devices) == 0 {
		devices = []string{"0"}
	}

	var errs []error
	for _, device := range devices {
		src, err := openDevice(device, requested, logger)
		if err != nil {
			logger.Warn("camera candidate failed", "device", device, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", device, err))
			continue
		}
		logger.Info("camera opened", "device", device, "size", src.size.String(), "fps", src.fps)
		return src, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoCamera, errors.Join(errs...))
}

func openDevice(device string, requested frame.Size, logger logging.Logger) (*GoCVFrameSource, error) {
	var id any = device
	if idx, err := strconv.Atoi(strings.TrimSpace(device)); err == nil {
		id = idx
	}

	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.New("capture is not opened")
	}

	_, statErr := os.Stat(device)
	isFile := statErr == nil

	if !isFile {
		if !requested.IsEmpty() {
			capture.Set(gocv.VideoCaptureFrameWidth, float64(requested.Width))
			capture.Set(gocv.VideoCaptureFrameHeight, float64(requested.Height))
		}
		capture.Set(gocv.VideoCaptureConvertRGB, 1)
		capture.Set(gocv.VideoCaptureFOURCC, float64(capture.ToCodec("MJPG")))
	}

	src := &GoCVFrameSource{
		capture: capture,
		device:  device,
		isFile:  isFile,
		fps:     capture.Get(gocv.VideoCaptureFPS),
		img:     gocv.NewMat(),
		bgr:     gocv.NewMat(),
		logger:  logger,
	}

	// some drivers return empty frames right after opening
	ok := false
	for i := 0; i < warmupReads; i++ {
		if capture.Read(&src.img) && !src.img.Empty() {
			ok = true
			break
		}
		time.Sleep(warmupInterval)
	}
	if !ok {
		src.Close()
		return nil, fmt.Errorf("no frame after %d warm-up reads", warmupReads)
	}

	src.size = frame.Size{Width: src.img.Cols(), Height: src.img.Rows()}
	logger.Debug("capture warm-up complete", "device", device, "reported_width", capture.Get(gocv.VideoCaptureFrameWidth))
	return src, nil
}

func (s *GoCVFrameSource) Next(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if ok := s.capture.Read(&s.img); !ok || s.img.Empty() {
		if s.isFile {
			return nil, frame.ErrEndOfStream
		}
		return nil, fmt.Errorf("read from %s failed, stream interrupted", s.device)
	}

	f, err := s.toFrame(s.img)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *GoCVFrameSource) toFrame(img gocv.Mat) (*frame.Frame, error) {
	src := img
	switch img.Type() {
	case gocv.MatTypeCV8UC3:
	case gocv.MatTypeCV8UC1:
		gocv.CvtColor(img, &s.bgr, gocv.ColorGrayToBGR)
		src = s.bgr
	case gocv.MatTypeCV8UC4:
		gocv.CvtColor(img, &s.bgr, gocv.ColorBGRAToBGR)
		src = s.bgr
	default:
		return nil, fmt.Errorf("unsupported capture pixel format %v", img.Type())
	}

	f := &frame.Frame{
		Seq:       s.seq,
		Timestamp: time.Now(),
		Size:      frame.Size{Width: src.Cols(), Height: src.Rows()},
		Pixels:    src.ToBytes(),
	}
	s.seq++
	return f, nil
}

// FrameRate is the rate reported by the driver, which may be zero
func (s *GoCVFrameSource) FrameRate() float64 { return s.fps }

func (s *GoCVFrameSource) Size() frame.Size { return s.size }

func (s *GoCVFrameSource) Close() error {
	s.img.Close()
	s.bgr.Close()
	return s.capture.Close()
}

// frameToMat wraps the frame pixels in a new Mat; the caller closes it
func frameToMat(f *frame.Frame) (gocv.Mat, error) {
	want := f.Size.Width * f.Size.Height * 3
	if f.Size.IsEmpty() || len(f.Pixels) != want {
		return gocv.Mat{}, fmt.Errorf("frame %d: expected %d BGR bytes for %s, got %d", f.Seq, want, f.Size, len(f.Pixels))
	}
	return gocv.NewMatFromBytes(f.Size.Height, f.Size.Width, gocv.MatTypeCV8UC3, f.Pixels)
}
