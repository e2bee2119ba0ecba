package video

import (
	"fmt"
	"image"

	"github.com/Kim-Ziho/doorbell-camera/config"
	"github.com/Kim-Ziho/doorbell-camera/frame"
	"github.com/Kim-Ziho/doorbell-camera/logging"
	motiondetection "github.com/Kim-Ziho/doorbell-camera/motion-detection"
	"gocv.io/x/gocv"
)

// GoCVMotionDetector scores frames with a MOG2 background subtractor.
// The background model persists across calls, so frames must arrive in capture order.
type GoCVMotionDetector struct {
	settings motiondetection.MotionDetectionSettings
	logger   logging.Logger

	subtractor gocv.BackgroundSubtractorMOG2
	kernel     gocv.Mat
	gray       gocv.Mat
	blurred    gocv.Mat
	fgMask     gocv.Mat
	binMask    gocv.Mat
	opened     gocv.Mat
}

func NewGoCVMotionDetector(provider config.SettingsProvider[motiondetection.MotionDetectionSettings], logger logging.Logger) *GoCVMotionDetector {
	if logger == nil {
		logger = logging.NopLogger
	}
	// the model cannot be rebuilt mid-stream, so settings are read once
	settings := provider.GetSettings()

	logger.Info("motion detector ready",
		"mog_history", settings.MogHistory,
		"mog_var_threshold", settings.MogVarThreshold,
		"detect_shadows", settings.DetectShadows,
		"binary_threshold", settings.BinaryThreshold)

	return &GoCVMotionDetector{
		settings:   settings,
		logger:     logger,
		subtractor: gocv.NewBackgroundSubtractorMOG2WithParams(settings.MogHistory, settings.MogVarThreshold, settings.DetectShadows),
		kernel:     gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
		gray:       gocv.NewMat(),
		blurred:    gocv.NewMat(),
		fgMask:     gocv.NewMat(),
		binMask:    gocv.NewMat(),
		opened:     gocv.NewMat(),
	}
}

// Evaluate runs gray, blur, MOG2, threshold (which drops the 127 shadow label),
// open, dilate twice, then reports the foreground fraction and the larger blobs.
func (d *GoCVMotionDetector) Evaluate(f *frame.Frame) (motiondetection.Evaluation, error) {
	img, err := frameToMat(f)
	if err != nil {
		return motiondetection.Evaluation{}, err
	}
	defer img.Close()

	k := d.settings.BlurKernelSize
	gocv.CvtColor(img, &d.gray, gocv.ColorBGRToGray)
	gocv.GaussianBlur(d.gray, &d.blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)
	d.subtractor.Apply(d.blurred, &d.fgMask)
	gocv.Threshold(d.fgMask, &d.binMask, float32(d.settings.BinaryThreshold), 255, gocv.ThresholdBinary)
	gocv.MorphologyEx(d.binMask, &d.opened, gocv.MorphOpen, d.kernel)
	gocv.Dilate(d.opened, &d.binMask, d.kernel)
	gocv.Dilate(d.binMask, &d.opened, d.kernel)

	total := d.opened.Rows() * d.opened.Cols()
	if total == 0 {
		return motiondetection.Evaluation{}, fmt.Errorf("frame %d produced an empty mask", f.Seq)
	}
	ratio := float64(gocv.CountNonZero(d.opened)) / float64(total)

	contours := gocv.FindContours(d.opened, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var regions []image.Rectangle
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		if gocv.ContourArea(c) < d.settings.MinRegionArea {
			continue
		}
		regions = append(regions, gocv.BoundingRect(c))
	}

	return motiondetection.Evaluation{Ratio: motiondetection.ClampRatio(ratio), Regions: regions}, nil
}

func (d *GoCVMotionDetector) Close() error {
	d.subtractor.Close()
	d.kernel.Close()
	d.gray.Close()
	d.blurred.Close()
	d.fgMask.Close()
	d.binMask.Close()
	d.opened.Close()
	return nil
}
