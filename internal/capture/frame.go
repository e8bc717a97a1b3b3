// Package capture owns the video and audio input devices: a gocv-backed
// camera source, PortAudio/malgo microphone sources, and scripted sources
// for tests. Device handles are exclusively owned by their source; callers
// never touch the underlying device.
package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/mikeyg42/sentinel/internal/watchlog"
)

// FrameSource yields decoded frames from a capture device. Next never blocks
// past one device read; false means no frame this tick, try again later.
type FrameSource interface {
	// Next fills dst with the next frame. False means no frame is available.
	Next(dst *gocv.Mat) bool
	// Dimensions reports the configured capture size.
	Dimensions() (width, height int)
	// ID identifies the device for idempotent switch checks.
	ID() string
	Close() error
}

// Camera is a FrameSource over a local capture device.
type Camera struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	index  int
	width  int
	height int
	log    watchlog.Logger
}

// OpenCamera opens the capture device at index with the tier's dimensions and
// the requested acquisition rate. Failure to open or deliver a first frame is
// reported to the caller; the caller decides whether to retry or fall back.
func OpenCamera(index int, res Resolution, fps int) (*Camera, error) {
	vc, err := gocv.VideoCaptureDevice(index)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %d: device not opened", index)
	}

	w, h := res.Dims()
	vc.Set(gocv.VideoCaptureFOURCC, vc.ToCodec("MJPG"))
	vc.Set(gocv.VideoCaptureFrameWidth, float64(w))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(h))
	vc.Set(gocv.VideoCaptureFPS, float64(fps))

	c := &Camera{
		vc:     vc,
		index:  index,
		width:  w,
		height: h,
		log:    watchlog.L().Named("camera"),
	}
	c.log.Info("camera opened",
		watchlog.Int("index", index),
		watchlog.String("resolution", string(res)),
		watchlog.Int("fps", fps))
	return c, nil
}

// Next reads one frame into dst. An empty read is reported as no-frame, never
// as an error; the device stays open.
func (c *Camera) Next(dst *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return false
	}
	if ok := c.vc.Read(dst); !ok || dst.Empty() {
		return false
	}
	return true
}

// Dimensions reports the configured capture size.
func (c *Camera) Dimensions() (int, int) { return c.width, c.height }

// ID returns a stable identifier for the underlying device.
func (c *Camera) ID() string { return fmt.Sprintf("camera:%d", c.index) }

// Index returns the device index the camera was opened with.
func (c *Camera) Index() int { return c.index }

// Close releases the device handle. Safe to call twice.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	if err != nil {
		return fmt.Errorf("close camera %d: %w", c.index, err)
	}
	return nil
}

var _ FrameSource = (*Camera)(nil)

// ProbeCameras reports which device indices in [0, limit) open successfully.
// Intended for a one-shot startup probe; probing while a camera is in use
// can disturb the active device on some platforms.
func ProbeCameras(limit int) []int {
	var found []int
	for i := 0; i < limit; i++ {
		vc, err := gocv.VideoCaptureDevice(i)
		if err != nil {
			continue
		}
		if vc.IsOpened() {
			found = append(found, i)
		}
		vc.Close()
	}
	return found
}
