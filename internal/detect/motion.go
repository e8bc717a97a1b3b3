// Package detect implements the frame and audio activity classifiers.
package detect

import (
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Mode selects the motion detection algorithm.
type Mode uint8

const (
	// ModeFastDifference diffs each frame against an exponentially updated
	// reference frame. Cheap, adapts to slow lighting drift.
	ModeFastDifference Mode = iota
	// ModeBackgroundModel maintains a multi-Gaussian background estimate
	// (MOG2) over a short history window.
	ModeBackgroundModel
)

// String returns the config-file name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeBackgroundModel:
		return "background_model"
	default:
		return "fast_difference"
	}
}

// ParseMode maps a mode name to a Mode. Unknown names fall back to
// ModeFastDifference.
func ParseMode(s string) Mode {
	switch s {
	case "background_model":
		return ModeBackgroundModel
	default:
		return ModeFastDifference
	}
}

const (
	// binarizeCutoff is the intensity delta above which a pixel counts as
	// changed, for both modes.
	binarizeCutoff = 25

	mog2History      = 50
	mog2VarThreshold = 30
)

// thresholdPercent maps sensitivity (1..25) to the changed-pixel percentage
// above which a frame counts as motion. The two modes use different
// divisors; the same sensitivity maps to a lower percentage in background
// mode.
func thresholdPercent(mode Mode, sensitivity int) float64 {
	switch mode {
	case ModeBackgroundModel:
		return float64(30-sensitivity) / 10
	default:
		return float64(30-sensitivity) / 5
	}
}

// MotionStats are cumulative counters for one detector.
type MotionStats struct {
	FramesProcessed uint64
	MotionFrames    uint64
	LastPercent     float64
	LastMotionAt    time.Time
}

// MotionDetector classifies frames as motion or no motion. It is stateful:
// FastDifference keeps a reference frame, BackgroundModel keeps the MOG2
// estimate. Switching modes or devices must go through SetMode/Reset so the
// stale state cannot produce spurious triggers.
type MotionDetector struct {
	mu   sync.Mutex
	mode Mode

	ref    gocv.Mat
	refSet bool
	mog2   gocv.BackgroundSubtractorMOG2
	mogSet bool

	gray    gocv.Mat
	blurred gocv.Mat
	diff    gocv.Mat
	mask    gocv.Mat
	binary  gocv.Mat
	dilated gocv.Mat
	kernel  gocv.Mat

	stats MotionStats
}

// NewMotionDetector creates a detector in the given mode.
func NewMotionDetector(mode Mode) *MotionDetector {
	return &MotionDetector{
		mode:    mode,
		ref:     gocv.NewMat(),
		gray:    gocv.NewMat(),
		blurred: gocv.NewMat(),
		diff:    gocv.NewMat(),
		mask:    gocv.NewMat(),
		binary:  gocv.NewMat(),
		dilated: gocv.NewMat(),
		kernel:  gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
	}
}

// Mode returns the active algorithm.
func (d *MotionDetector) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// SetMode switches the algorithm. A real switch always resets the adaptive
// state; setting the current mode again is a no-op.
func (d *MotionDetector) SetMode(mode Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if mode == d.mode {
		return
	}
	d.mode = mode
	d.resetLocked()
}

// Reset clears the reference frame and the background estimate. Called on
// device switches, where the old scene no longer applies.
func (d *MotionDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *MotionDetector) resetLocked() {
	d.refSet = false
	if d.mogSet {
		d.mog2.Close()
		d.mogSet = false
	}
}

// Classify reports whether the frame shows motion at the given sensitivity
// (1..25, higher triggers more).
func (d *MotionDetector) Classify(frame gocv.Mat, sensitivity int) (bool, error) {
	if frame.Empty() {
		return false, fmt.Errorf("classify: empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.FramesProcessed++

	var percent float64
	switch d.mode {
	case ModeBackgroundModel:
		percent = d.classifyBackground(frame)
	default:
		first := d.classifyFastDifference(frame, &percent)
		if first {
			return false, nil
		}
	}
	d.stats.LastPercent = percent

	motion := percent > thresholdPercent(d.mode, sensitivity)
	if motion {
		d.stats.MotionFrames++
		d.stats.LastMotionAt = time.Now()
	}
	return motion, nil
}

// classifyFastDifference computes the changed percentage against the
// reference. The first call (and any call after a reset or a frame-size
// change) seeds the reference and reports true for "first", meaning no
// motion regardless of content.
func (d *MotionDetector) classifyFastDifference(frame gocv.Mat, percent *float64) (first bool) {
	gocv.CvtColor(frame, &d.gray, gocv.ColorBGRToGray)
	gocv.GaussianBlur(d.gray, &d.blurred, image.Pt(21, 21), 0, 0, gocv.BorderDefault)

	if !d.refSet || d.ref.Rows() != d.blurred.Rows() || d.ref.Cols() != d.blurred.Cols() {
		d.blurred.CopyTo(&d.ref)
		d.refSet = true
		return true
	}

	gocv.AbsDiff(d.ref, d.blurred, &d.diff)
	gocv.Threshold(d.diff, &d.binary, binarizeCutoff, 255, gocv.ThresholdBinary)

	changed := gocv.CountNonZero(d.binary)
	total := d.binary.Rows() * d.binary.Cols()
	if total > 0 {
		*percent = 100 * float64(changed) / float64(total)
	}

	// Fold the new frame into the reference so slow lighting drift does
	// not read as motion.
	gocv.AddWeighted(d.ref, 0.7, d.blurred, 0.3, 0, &d.ref)
	return false
}

func (d *MotionDetector) classifyBackground(frame gocv.Mat) float64 {
	if !d.mogSet {
		d.mog2 = gocv.NewBackgroundSubtractorMOG2WithParams(mog2History, mog2VarThreshold, true)
		d.mogSet = true
	}

	gocv.CvtColor(frame, &d.gray, gocv.ColorBGRToGray)
	gocv.GaussianBlur(d.gray, &d.blurred, image.Pt(21, 21), 0, 0, gocv.BorderDefault)
	d.mog2.Apply(d.blurred, &d.mask)
	gocv.Threshold(d.mask, &d.binary, binarizeCutoff, 255, gocv.ThresholdBinary)
	gocv.Dilate(d.binary, &d.dilated, d.kernel)
	gocv.Dilate(d.dilated, &d.dilated, d.kernel)

	changed := gocv.CountNonZero(d.dilated)
	total := d.dilated.Rows() * d.dilated.Cols()
	if total == 0 {
		return 0
	}
	return 100 * float64(changed) / float64(total)
}

// Stats returns a copy of the cumulative counters.
func (d *MotionDetector) Stats() MotionStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close releases the detector's OpenCV buffers.
func (d *MotionDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mogSet {
		d.mog2.Close()
		d.mogSet = false
	}
	for _, m := range []*gocv.Mat{&d.ref, &d.gray, &d.blurred, &d.diff, &d.mask, &d.binary, &d.dilated, &d.kernel} {
		m.Close()
	}
}
