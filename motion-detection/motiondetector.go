package motiondetection

import (
	"image"

	"github.com/Kim-Ziho/doorbell-camera/frame"
)

var DefaultMotionDetectionSettings = MotionDetectionSettings{
	MogHistory:      500,  // frames of background history
	MogVarThreshold: 16.0, // squared Mahalanobis distance for foreground
	DetectShadows:   true,
	BlurKernelSize:  5,
	BinaryThreshold: 200, // drops the 127 shadow label
	MinRegionArea:   200,
}

// Evaluation is the detector's verdict on one frame
type Evaluation struct {
	// Ratio is the fraction of foreground pixels, in [0,1]
	Ratio float64
	// Regions are bounding boxes of significant foreground blobs, for display only
	Regions []image.Rectangle
}

type MotionDetector interface {
	// Evaluate updates the background model with f and reports how much of it moved.
	// It must be called with frames in capture order.
	Evaluate(f *frame.Frame) (Evaluation, error)
	Close() error
}

// ClampRatio keeps a ratio inside [0,1]
func ClampRatio(r float64) float64 {
	if r != r || r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
