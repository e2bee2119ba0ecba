package motiondetection

import (
	"fmt"
	"image"

	"github.com/Kim-Ziho/doorbell-camera/frame"
)

// DefaultDifferenceThreshold is the luma delta above which a pixel counts as changed
const DefaultDifferenceThreshold = 25

// FrameDifferenceDetector compares each frame with the previous one in pure Go.
// It is far cruder than the background subtractor but needs no OpenCV,
// which makes it the detector for simulated runs.
type FrameDifferenceDetector struct {
	threshold uint8
	previous  []uint8
	size      frame.Size
}

func NewFrameDifferenceDetector(threshold uint8) *FrameDifferenceDetector {
	if threshold == 0 {
		threshold = DefaultDifferenceThreshold
	}
	return &FrameDifferenceDetector{threshold: threshold}
}

func (d *FrameDifferenceDetector) Evaluate(f *frame.Frame) (Evaluation, error) {
	pixels := f.Size.Width * f.Size.Height
	if f.Size.IsEmpty() || len(f.Pixels) < pixels*3 {
		return Evaluation{}, fmt.Errorf("frame %d: expected %d BGR bytes for %s, got %d", f.Seq, pixels*3, f.Size, len(f.Pixels))
	}

	luma := make([]uint8, pixels)
	for i := range luma {
		b, g, r := uint32(f.Pixels[i*3]), uint32(f.Pixels[i*3+1]), uint32(f.Pixels[i*3+2])
		luma[i] = uint8((29*b + 150*g + 77*r) >> 8)
	}

	// first frame, or the source changed size
	if d.previous == nil || d.size != f.Size {
		d.previous = luma
		d.size = f.Size
		return Evaluation{}, nil
	}

	changed := 0
	box := image.Rectangle{}
	for i, v := range luma {
		diff := int(v) - int(d.previous[i])
		if diff < 0 {
			diff = -diff
		}
		if diff <= int(d.threshold) {
			continue
		}
		changed++
		x, y := i%f.Size.Width, i/f.Size.Width
		box = box.Union(image.Rect(x, y, x+1, y+1))
	}
	d.previous = luma

	eval := Evaluation{Ratio: ClampRatio(float64(changed) / float64(pixels))}
	if changed > 0 {
		eval.Regions = []image.Rectangle{box}
	}
	return eval, nil
}

func (d *FrameDifferenceDetector) Close() error {
	d.previous = nil
	return nil
}
