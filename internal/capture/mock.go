package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// ScriptedFrameSource replays a fixed script of frame availability. Used by
// controller tests to drive ticks deterministically.
type ScriptedFrameSource struct {
	mu     sync.Mutex
	script []bool
	pos    int
	width  int
	height int
	id     string
	closed bool
}

// NewScriptedFrameSource returns a source that reports availability per the
// script, repeating the final entry once the script is exhausted.
func NewScriptedFrameSource(id string, width, height int, script ...bool) *ScriptedFrameSource {
	if len(script) == 0 {
		script = []bool{true}
	}
	return &ScriptedFrameSource{script: script, width: width, height: height, id: id}
}

// Next follows the script. On an available tick dst is given a frame of the
// configured size.
func (s *ScriptedFrameSource) Next(dst *gocv.Mat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	ok := s.script[s.pos]
	if s.pos < len(s.script)-1 {
		s.pos++
	}
	if !ok {
		return false
	}

	if dst.Empty() {
		m := gocv.NewMatWithSize(s.height, s.width, gocv.MatTypeCV8UC3)
		m.CopyTo(dst)
		m.Close()
	}
	return true
}

// Dimensions reports the configured size.
func (s *ScriptedFrameSource) Dimensions() (int, int) { return s.width, s.height }

// ID returns the identifier the source was built with.
func (s *ScriptedFrameSource) ID() string { return s.id }

// Close marks the source closed; subsequent Next calls report no frame.
func (s *ScriptedFrameSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *ScriptedFrameSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ScriptedAudioSource hands out queued chunks. Used by controller tests.
type ScriptedAudioSource struct {
	mu     sync.Mutex
	queue  []*AudioChunk
	id     string
	closed bool
}

// NewScriptedAudioSource returns a source preloaded with chunks.
func NewScriptedAudioSource(id string, chunks ...*AudioChunk) *ScriptedAudioSource {
	return &ScriptedAudioSource{queue: append([]*AudioChunk(nil), chunks...), id: id}
}

// Push appends a chunk to the queue.
func (s *ScriptedAudioSource) Push(chunk *AudioChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, chunk)
}

// NextChunk pops the oldest queued chunk, or nil when the queue is empty.
func (s *ScriptedAudioSource) NextChunk() *AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.queue) == 0 {
		return nil
	}
	chunk := s.queue[0]
	s.queue = s.queue[1:]
	return chunk
}

// ID returns the identifier the source was built with.
func (s *ScriptedAudioSource) ID() string { return s.id }

// Close marks the source closed; subsequent NextChunk calls return nil.
func (s *ScriptedAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *ScriptedAudioSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var (
	_ FrameSource = (*ScriptedFrameSource)(nil)
	_ AudioSource = (*ScriptedAudioSource)(nil)
)
