package api

import (
	"sync"

	"gocv.io/x/gocv"
)

// Preview retains a copy of the most recent captured frame and serves it as
// JPEG on demand. Update runs on the tick goroutine, so it only copies; the
// encode happens on the request path.
type Preview struct {
	mu     sync.Mutex
	latest gocv.Mat
	have   bool
	closed bool
}

func NewPreview() *Preview {
	return &Preview{latest: gocv.NewMat()}
}

// Update stores a copy of frame. The frame is borrowed and must not be
// retained past the call, matching the controller's preview contract.
func (p *Preview) Update(frame gocv.Mat) {
	if frame.Empty() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	frame.CopyTo(&p.latest)
	p.have = true
}

// Snapshot encodes the retained frame as JPEG. ok is false until the first
// frame arrives.
func (p *Preview) Snapshot() (jpeg []byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.have || p.closed {
		return nil, false
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, p.latest)
	if err != nil {
		return nil, false
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, true
}

// Close releases the retained frame.
func (p *Preview) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.have = false
	p.latest.Close()
}
