package watcher

import (
	"sync"

	"gocv.io/x/gocv"
)

// FrameRing retains the newest N frames while the controller is idle so a
// new session can start with a little context from before the trigger.
// Frames are cloned on Add; Drain hands ownership to the caller.
type FrameRing struct {
	mu       sync.Mutex
	frames   []gocv.Mat
	filled   []bool
	next     int
	capacity int
}

// NewFrameRing creates a ring holding up to capacity frames. Returns nil
// for capacity <= 0, which callers treat as pre-roll disabled.
func NewFrameRing(capacity int) *FrameRing {
	if capacity <= 0 {
		return nil
	}
	return &FrameRing{
		frames:   make([]gocv.Mat, capacity),
		filled:   make([]bool, capacity),
		capacity: capacity,
	}
}

// Add clones the frame into the ring, evicting the oldest when full.
func (r *FrameRing) Add(frame gocv.Mat) {
	if r == nil || frame.Empty() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.filled[r.next] {
		r.frames[r.next].Close()
	}
	r.frames[r.next] = frame.Clone()
	r.filled[r.next] = true
	r.next = (r.next + 1) % r.capacity
}

// Drain returns the buffered frames oldest-first and empties the ring. The
// caller owns the returned Mats and must close them.
func (r *FrameRing) Drain() []gocv.Mat {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]gocv.Mat, 0, r.capacity)
	for i := 0; i < r.capacity; i++ {
		idx := (r.next + i) % r.capacity
		if r.filled[idx] {
			out = append(out, r.frames[idx])
			r.filled[idx] = false
		}
	}
	r.next = 0
	return out
}

// Len reports how many frames are buffered.
func (r *FrameRing) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, f := range r.filled {
		if f {
			n++
		}
	}
	return n
}

// Close releases any buffered frames.
func (r *FrameRing) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.frames {
		if r.filled[i] {
			r.frames[i].Close()
			r.filled[i] = false
		}
	}
}
