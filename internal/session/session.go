// Package session owns the two output artifacts of one recording event: an
// OpenCV-encoded video file written frame by frame, and a wave file whose
// PCM accumulates in memory until the session is finalized. The two files
// share only a timestamp-derived name; they are never muxed.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/mikeyg42/sentinel/internal/capture"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

// timestampLayout names artifacts as prefix_YYYYMMDD_HHMMSS.ext.
const timestampLayout = "20060102_150405"

// DefaultCodecs is the fallback chain tried when opening the video sink.
var DefaultCodecs = []string{"mp4v", "avc1", "MJPG"}

// Options shape the artifacts of one session.
type Options struct {
	Width  int
	Height int
	// WriterFPS is the frame rate stamped into the container. Independent
	// of the acquisition rate; see the output config.
	WriterFPS   float64
	VideoPrefix string
	AudioPrefix string
	// Codecs overrides the fallback chain. Empty uses DefaultCodecs.
	Codecs     []string
	SampleRate int
	Log        watchlog.Logger
}

// Session is one recording event. Frames go straight to the video sink;
// audio accumulates until Finalize writes the wave file. The controller is
// the only writer.
type Session struct {
	mu sync.Mutex

	id        string
	videoPath string
	audioPath string
	startedAt time.Time
	codec     string

	writer     *gocv.VideoWriter
	samples    []int16
	sampleRate int
	frames     int64
	finalized  bool

	log watchlog.Logger
}

// New opens a session whose artifact names derive from now. The video sink
// is opened immediately, trying each codec in turn; if none opens, nothing
// is left behind and the error is returned.
func New(dir string, now time.Time, opts Options) (*Session, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("new session: invalid dimensions %dx%d", opts.Width, opts.Height)
	}
	if opts.WriterFPS <= 0 {
		opts.WriterFPS = 20
	}
	if opts.VideoPrefix == "" {
		opts.VideoPrefix = "motion"
	}
	if opts.AudioPrefix == "" {
		opts.AudioPrefix = "audio"
	}
	if len(opts.Codecs) == 0 {
		opts.Codecs = DefaultCodecs
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	log := opts.Log
	if log == nil {
		log = watchlog.L().Named("session")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("new session: create output dir: %w", err)
	}

	ts := now.Format(timestampLayout)
	videoPath := filepath.Join(dir, fmt.Sprintf("%s_%s.mp4", opts.VideoPrefix, ts))
	audioPath := filepath.Join(dir, fmt.Sprintf("%s_%s.wav", opts.AudioPrefix, ts))

	var writer *gocv.VideoWriter
	var codec string
	var lastErr error
	for _, fourcc := range opts.Codecs {
		w, err := gocv.VideoWriterFile(videoPath, fourcc, opts.WriterFPS, opts.Width, opts.Height, true)
		if err != nil {
			lastErr = err
			continue
		}
		if !w.IsOpened() {
			w.Close()
			lastErr = fmt.Errorf("codec %s refused", fourcc)
			continue
		}
		writer = w
		codec = fourcc
		break
	}
	if writer == nil {
		os.Remove(videoPath)
		return nil, fmt.Errorf("new session: no codec opened %s: %w", videoPath, lastErr)
	}

	id := uuid.New().String()
	s := &Session{
		id:         id,
		videoPath:  videoPath,
		audioPath:  audioPath,
		startedAt:  now,
		codec:      codec,
		writer:     writer,
		sampleRate: opts.SampleRate,
		log:        log.With(watchlog.String("session_id", id)),
	}

	s.log.Info("session opened",
		watchlog.String("video", videoPath),
		watchlog.String("audio", audioPath),
		watchlog.String("codec", codec))
	return s, nil
}

// WriteFrame appends exactly one frame to the video sink.
func (s *Session) WriteFrame(frame gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized || s.writer == nil {
		return fmt.Errorf("write frame: session finalized")
	}
	if err := s.writer.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.frames++
	return nil
}

// AppendAudio retains a copy of the chunk's samples for the wave file.
func (s *Session) AppendAudio(chunk *capture.AudioChunk) {
	if chunk == nil || len(chunk.Samples) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return
	}
	s.samples = append(s.samples, chunk.Samples...)
}

// Finalize flushes and closes the video sink, writes the accumulated audio
// as a wave file, and marks the session done. Both sinks are closed even
// when one fails; the first error wins. Calling it again is a no-op.
func (s *Session) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return nil
	}
	s.finalized = true

	var first error
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			first = fmt.Errorf("close video sink: %w", err)
		}
		s.writer = nil
	}

	// A video file that never received a frame is an empty container;
	// remove it rather than cataloging junk, and blank the path so
	// downstream consumers do not chase a deleted file.
	if s.frames == 0 {
		os.Remove(s.videoPath)
		s.videoPath = ""
	}

	if err := writeWAVFile(s.audioPath, s.samples, s.sampleRate); err != nil && first == nil {
		first = err
	}

	s.log.Info("session finalized",
		watchlog.Int64("frames", s.frames),
		watchlog.Int("samples", len(s.samples)),
		watchlog.Duration("duration", time.Since(s.startedAt)))
	return first
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// VideoPath returns the video artifact path. Empty after Finalize when no
// frame was ever written.
func (s *Session) VideoPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoPath
}

// AudioPath returns the audio artifact path.
func (s *Session) AudioPath() string { return s.audioPath }

// StartedAt returns the session's start time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Codec returns the fourcc that opened the video sink.
func (s *Session) Codec() string { return s.codec }

// FrameCount returns the number of frames written so far.
func (s *Session) FrameCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// SampleCount returns the number of audio samples retained so far.
func (s *Session) SampleCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.samples))
}
