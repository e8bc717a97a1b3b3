// Package watcher is the detection-and-recording controller: a fixed-cadence
// tick loop that pulls frames and audio chunks, classifies activity, and
// drives the Idle/Recording state machine with linger semantics. The tick is
// the single writer of detection state and of the active session.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gocv.io/x/gocv"

	"github.com/mikeyg42/sentinel/internal/capture"
	"github.com/mikeyg42/sentinel/internal/detect"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

// Settings is the immutable per-tick configuration snapshot. The config
// store is the sole writer; the controller only reads it.
type Settings struct {
	Sensitivity     int
	Mode            detect.Mode
	VoiceEnabled    bool
	Linger          time.Duration
	CameraIndex     int
	MicrophoneIndex int
	Resolution      capture.Resolution
}

// SettingsFunc supplies the snapshot read at the top of every tick.
type SettingsFunc func() Settings

// MotionClassifier is the motion-detection contract the controller needs.
// *detect.MotionDetector implements it.
type MotionClassifier interface {
	Classify(frame gocv.Mat, sensitivity int) (bool, error)
	Mode() detect.Mode
	SetMode(detect.Mode)
	Reset()
}

// VoiceClassifier is the voice-detection contract the controller needs.
type VoiceClassifier interface {
	Classify(chunk *capture.AudioChunk) bool
}

// Session is the recording-session contract the controller drives.
// *session.Session implements it.
type Session interface {
	WriteFrame(frame gocv.Mat) error
	AppendAudio(chunk *capture.AudioChunk)
	Finalize() error
	ID() string
	VideoPath() string
	AudioPath() string
	StartedAt() time.Time
	FrameCount() int64
	SampleCount() int64
}

// SessionFactory opens a new session with artifact names derived from now.
type SessionFactory func(now time.Time) (Session, error)

// CameraOpener opens a replacement frame source during a device switch.
type CameraOpener func(index int, res capture.Resolution) (capture.FrameSource, error)

// MicrophoneOpener opens a replacement audio source during a device switch.
type MicrophoneOpener func(index int) (capture.AudioSource, error)

// Options wire a Controller.
type Options struct {
	Frames capture.FrameSource
	// Audio may be nil; voice detection and audio capture are then off.
	Audio  capture.AudioSource
	Motion MotionClassifier
	Voice  VoiceClassifier

	Settings   SettingsFunc
	NewSession SessionFactory

	// OpenCamera/OpenMicrophone enable device switching. Nil means the
	// respective switch operation reports an error.
	OpenCamera     CameraOpener
	OpenMicrophone MicrophoneOpener

	// TickInterval is the loop cadence; default 100ms.
	TickInterval time.Duration
	// VoiceInterval throttles voice evaluation; default 300ms.
	VoiceInterval time.Duration

	// PreRollFrames retains the newest idle frames and writes them at
	// session start. Zero disables pre-roll.
	PreRollFrames int
	// MinFreeBytes refuses session starts when the output volume has less
	// free space. Zero disables the preflight.
	MinFreeBytes uint64
	OutputDir    string

	// Monitoring is the initial monitoring state.
	Monitoring bool

	// Clock is injectable for tests; defaults to time.Now.
	Clock func() time.Time
	Log   watchlog.Logger
}

// Controller ties sources, detectors and sessions together. All mutable
// state is guarded by mu; Tick, Status and the switch operations serialize
// on it, keeping the single-writer discipline under any caller.
type Controller struct {
	mu sync.Mutex

	frames capture.FrameSource
	audio  capture.AudioSource
	motion MotionClassifier
	voice  VoiceClassifier

	settings   SettingsFunc
	newSession SessionFactory
	openCamera CameraOpener
	openMic    MicrophoneOpener

	tickInterval  time.Duration
	voiceInterval time.Duration
	minFreeBytes  uint64
	outputDir     string

	clock func() time.Time
	log   watchlog.Logger

	state           State
	monitoring      bool
	session         Session
	sessionTriggers []string

	lastResult   DetectionResult
	lastMotionAt time.Time
	lastVoiceAt  time.Time

	lastVoiceCheck time.Time
	voiceCarried   bool

	cameraIndex int
	micIndex    int
	resolution  capture.Resolution

	switchBackoff backoff.BackOff
	nextSwitchAt  time.Time

	preRoll *FrameRing
	frame   gocv.Mat
	preview func(frame gocv.Mat)

	listeners []Listener
	metrics   Metrics

	closeOnce sync.Once
}

// New creates a Controller in the Idle state.
func New(opts Options) (*Controller, error) {
	if opts.Frames == nil {
		return nil, fmt.Errorf("new controller: frame source is required")
	}
	if opts.Motion == nil {
		return nil, fmt.Errorf("new controller: motion classifier is required")
	}
	if opts.Settings == nil {
		return nil, fmt.Errorf("new controller: settings func is required")
	}
	if opts.NewSession == nil {
		return nil, fmt.Errorf("new controller: session factory is required")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 100 * time.Millisecond
	}
	if opts.VoiceInterval <= 0 {
		opts.VoiceInterval = 300 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Log == nil {
		opts.Log = watchlog.L().Named("watcher")
	}

	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = time.Second
	ebo.MaxInterval = time.Minute
	ebo.MaxElapsedTime = 0 // keep retrying

	st := opts.Settings()
	return &Controller{
		frames:        opts.Frames,
		audio:         opts.Audio,
		motion:        opts.Motion,
		voice:         opts.Voice,
		settings:      opts.Settings,
		newSession:    opts.NewSession,
		openCamera:    opts.OpenCamera,
		openMic:       opts.OpenMicrophone,
		tickInterval:  opts.TickInterval,
		voiceInterval: opts.VoiceInterval,
		minFreeBytes:  opts.MinFreeBytes,
		outputDir:     opts.OutputDir,
		clock:         opts.Clock,
		log:           opts.Log,
		monitoring:    opts.Monitoring,
		cameraIndex:   st.CameraIndex,
		micIndex:      st.MicrophoneIndex,
		resolution:    st.Resolution,
		switchBackoff: ebo,
		preRoll:       NewFrameRing(opts.PreRollFrames),
		frame:         gocv.NewMat(),
	}, nil
}

// AddListener registers a transition observer. Call before Run.
func (c *Controller) AddListener(l Listener) {
	if l == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// SetPreview installs a per-tick frame callback. The callback borrows the
// frame for the duration of the call and must copy to retain.
func (c *Controller) SetPreview(fn func(frame gocv.Mat)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preview = fn
}

// Run drives the tick loop until the context is cancelled, then releases
// every held resource: an open session is finalized, both device handles
// closed.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	report := time.NewTicker(time.Minute)
	defer report.Stop()

	c.log.Info("controller running",
		watchlog.Duration("tick", c.tickInterval),
		watchlog.Duration("voice_interval", c.voiceInterval))

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return ctx.Err()
		case <-report.C:
			snap := c.metrics.Snapshot()
			c.log.Info("controller metrics",
				watchlog.Uint64("ticks", snap.Ticks),
				watchlog.Uint64("skipped", snap.SkippedTicks),
				watchlog.Uint64("frames_written", snap.FramesWritten),
				watchlog.Uint64("chunks_appended", snap.ChunksAppended),
				watchlog.Uint64("sessions", snap.SessionsStarted),
				watchlog.Uint64("source_errors", snap.SourceErrors),
				watchlog.Uint64("sink_errors", snap.SinkErrors))
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}

// Tick performs one iteration at the given time. Exported so tests can
// drive the state machine with a manual clock.
func (c *Controller) Tick(now time.Time) {
	st := c.settings()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.Ticks.Add(1)
	c.reconcileLocked(now, st)

	// No frame means no tick: no detection, no transition, an open session
	// simply waits for the next tick.
	if !c.frames.Next(&c.frame) {
		c.metrics.SkippedTicks.Add(1)
		return
	}

	if c.preview != nil {
		c.preview(c.frame)
	}

	result := c.classifyLocked(now, st)

	if result.Motion {
		c.lastMotionAt = now
		c.metrics.MotionTicks.Add(1)
	}
	if result.Voice {
		c.lastVoiceAt = now
		c.metrics.VoiceTicks.Add(1)
	}
	if result != c.lastResult {
		c.lastResult = result
		for _, l := range c.listeners {
			l.DetectionChanged(result)
		}
	}

	active := result.Motion || result.Voice

	if c.session == nil {
		if !active || !c.monitoring {
			c.preRoll.Add(c.frame)
			return
		}
		if !c.startSessionLocked(now, result) {
			return
		}
	} else if !active && now.Sub(c.latestActivityLocked()) >= st.Linger {
		c.finalizeLocked(now)
		return
	}

	if err := c.session.WriteFrame(c.frame); err != nil {
		// No half-open sessions: a sink that stopped accepting frames ends
		// the event.
		c.log.Error("frame write failed, finalizing session", watchlog.Error(err))
		c.metrics.SinkErrors.Add(1)
		c.finalizeLocked(now)
		return
	}
	c.metrics.FramesWritten.Add(1)
}

// classifyLocked runs the detectors per the snapshot and returns this
// tick's DetectionResult. Voice evaluation is throttled below the tick
// rate; its last result carries forward between evaluations. While a
// session is open every buffered chunk is drained and appended so the wave
// file has no gaps, whether or not voice detection is enabled.
func (c *Controller) classifyLocked(now time.Time, st Settings) DetectionResult {
	var result DetectionResult
	if !c.monitoring {
		return result
	}

	motion, err := c.motion.Classify(c.frame, st.Sensitivity)
	if err != nil {
		c.metrics.SourceErrors.Add(1)
		c.log.Debug("motion classify failed", watchlog.Error(err))
	}
	result.Motion = motion

	recording := c.session != nil
	evaluate := st.VoiceEnabled && c.voice != nil &&
		now.Sub(c.lastVoiceCheck) >= c.voiceInterval

	if c.audio != nil && (recording || evaluate) {
		chunks := c.drainAudioLocked()
		if evaluate {
			c.lastVoiceCheck = now
			if len(chunks) > 0 {
				c.voiceCarried = c.voice.Classify(chunks[len(chunks)-1])
				c.metrics.VoiceEvaluations.Add(1)
			} else {
				// A source delivering nothing is silence, not the last
				// verdict; a stalled microphone must not hold the linger
				// window open.
				c.voiceCarried = false
			}
		}
		if recording {
			for _, chunk := range chunks {
				c.session.AppendAudio(chunk)
				c.metrics.ChunksAppended.Add(1)
			}
		}
	}

	if !st.VoiceEnabled {
		c.voiceCarried = false
	}
	result.Voice = c.voiceCarried
	return result
}

// drainAudioLocked empties the source's buffered chunks, bounded so a
// runaway producer cannot stall the tick.
func (c *Controller) drainAudioLocked() []*capture.AudioChunk {
	const maxDrain = 64
	var chunks []*capture.AudioChunk
	for i := 0; i < maxDrain; i++ {
		chunk := c.audio.NextChunk()
		if chunk == nil {
			break
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (c *Controller) latestActivityLocked() time.Time {
	if c.lastVoiceAt.After(c.lastMotionAt) {
		return c.lastVoiceAt
	}
	return c.lastMotionAt
}

// startSessionLocked opens a session. On any failure the controller stays
// Idle; there is never a half-open session.
func (c *Controller) startSessionLocked(now time.Time, result DetectionResult) bool {
	if c.minFreeBytes > 0 {
		if err := EnsureFreeSpace(c.outputDir, c.minFreeBytes); err != nil {
			c.log.Warn("session refused", watchlog.Error(err))
			c.metrics.SinkErrors.Add(1)
			return false
		}
	}

	sess, err := c.newSession(now)
	if err != nil {
		c.log.Error("session open failed", watchlog.Error(err))
		c.metrics.SinkErrors.Add(1)
		return false
	}

	c.session = sess
	c.sessionTriggers = result.Triggers()
	c.state = StateRecording
	c.metrics.SessionsStarted.Add(1)

	for _, buffered := range c.preRoll.Drain() {
		if err := sess.WriteFrame(buffered); err == nil {
			c.metrics.FramesWritten.Add(1)
		} else {
			c.metrics.SinkErrors.Add(1)
		}
		buffered.Close()
	}

	c.log.Info("recording started",
		watchlog.String("session_id", sess.ID()),
		watchlog.Any("triggers", c.sessionTriggers))

	info := c.sessionInfoLocked(time.Time{})
	for _, l := range c.listeners {
		l.SessionStarted(info)
	}
	return true
}

// finalizeLocked closes the session and returns to Idle.
func (c *Controller) finalizeLocked(now time.Time) {
	if c.session == nil {
		return
	}

	if err := c.session.Finalize(); err != nil {
		c.log.Error("session finalize failed", watchlog.Error(err))
		c.metrics.SinkErrors.Add(1)
	}
	info := c.sessionInfoLocked(now)

	c.log.Info("recording stopped",
		watchlog.String("session_id", info.ID),
		watchlog.Int64("frames", info.Frames),
		watchlog.Int64("samples", info.Samples))

	c.session = nil
	c.sessionTriggers = nil
	c.state = StateIdle
	c.metrics.SessionsEnded.Add(1)

	for _, l := range c.listeners {
		l.SessionEnded(info)
	}
}

func (c *Controller) sessionInfoLocked(endedAt time.Time) SessionInfo {
	return SessionInfo{
		ID:        c.session.ID(),
		VideoPath: c.session.VideoPath(),
		AudioPath: c.session.AudioPath(),
		StartedAt: c.session.StartedAt(),
		EndedAt:   endedAt,
		Frames:    c.session.FrameCount(),
		Samples:   c.session.SampleCount(),
		Triggers:  append([]string(nil), c.sessionTriggers...),
	}
}

// reconcileLocked aligns the controller with the settings snapshot: a mode
// change swaps the detection algorithm, a device or resolution change
// triggers a switch. Failed switches are paced with exponential backoff
// instead of retried every tick.
func (c *Controller) reconcileLocked(now time.Time, st Settings) {
	if c.motion.Mode() != st.Mode {
		c.finalizeLocked(now)
		c.motion.SetMode(st.Mode)
		c.log.Info("detection mode changed", watchlog.String("mode", st.Mode.String()))
	}

	if now.Before(c.nextSwitchAt) {
		return
	}

	var failed bool
	if c.openCamera != nil && (st.CameraIndex != c.cameraIndex || st.Resolution != c.resolution) {
		if err := c.switchCameraLocked(now, st.CameraIndex, st.Resolution); err != nil {
			c.log.Warn("camera switch failed", watchlog.Error(err))
			failed = true
		}
	}
	if c.openMic != nil && st.MicrophoneIndex != c.micIndex {
		if err := c.switchMicrophoneLocked(now, st.MicrophoneIndex); err != nil {
			c.log.Warn("microphone switch failed", watchlog.Error(err))
			failed = true
		}
	}

	if failed {
		c.nextSwitchAt = now.Add(c.switchBackoff.NextBackOff())
	} else {
		c.switchBackoff.Reset()
		c.nextSwitchAt = time.Time{}
	}
}

// SwitchCamera switches to the capture device at index at the currently
// configured resolution. Idempotent while idle: the same index is a no-op
// with no detector reset.
func (c *Controller) SwitchCamera(index int) error {
	st := c.settings()
	c.mu.Lock()
	defer c.mu.Unlock()

	if index == c.cameraIndex && st.Resolution == c.resolution && c.session == nil {
		return nil
	}
	return c.switchCameraLocked(c.clock(), index, st.Resolution)
}

// switchCameraLocked finalizes any open session, opens the new device
// before closing the old one (a failed open leaves the old device
// running), and resets the motion detector for the new scene.
func (c *Controller) switchCameraLocked(now time.Time, index int, res capture.Resolution) error {
	if c.openCamera == nil {
		return fmt.Errorf("switch camera: no opener configured")
	}

	c.finalizeLocked(now)

	next, err := c.openCamera(index, res)
	if err != nil {
		return fmt.Errorf("switch camera to %d: %w", index, err)
	}

	old := c.frames
	c.frames = next
	c.cameraIndex = index
	c.resolution = res
	if old != nil {
		if err := old.Close(); err != nil {
			c.log.Warn("close previous camera", watchlog.Error(err))
		}
	}

	c.motion.Reset()
	c.log.Info("camera switched",
		watchlog.Int("index", index),
		watchlog.String("resolution", string(res)))
	return nil
}

// SwitchMicrophone switches to the audio input at index. Idempotent while
// idle with the same index.
func (c *Controller) SwitchMicrophone(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index == c.micIndex && c.session == nil {
		return nil
	}
	return c.switchMicrophoneLocked(c.clock(), index)
}

func (c *Controller) switchMicrophoneLocked(now time.Time, index int) error {
	if c.openMic == nil {
		return fmt.Errorf("switch microphone: no opener configured")
	}

	c.finalizeLocked(now)

	next, err := c.openMic(index)
	if err != nil {
		return fmt.Errorf("switch microphone to %d: %w", index, err)
	}

	old := c.audio
	c.audio = next
	c.micIndex = index
	c.voiceCarried = false
	if old != nil {
		if err := old.Close(); err != nil {
			c.log.Warn("close previous microphone", watchlog.Error(err))
		}
	}

	c.log.Info("microphone switched", watchlog.Int("index", index))
	return nil
}

// SetMonitoring enables or disables detection. Disabling finalizes any open
// session immediately; frames keep flowing for preview either way.
func (c *Controller) SetMonitoring(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monitoring == enabled {
		return
	}
	c.monitoring = enabled
	if !enabled {
		c.finalizeLocked(c.clock())
		c.lastResult = DetectionResult{}
		c.voiceCarried = false
	}
	c.log.Info("monitoring toggled", watchlog.Bool("enabled", enabled))
}

// Monitoring reports whether detection is enabled.
func (c *Controller) Monitoring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitoring
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a read-only snapshot for the API and status hub.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:        c.state.String(),
		Monitoring:   c.monitoring,
		Detection:    c.lastResult,
		LastMotionAt: c.lastMotionAt,
		LastVoiceAt:  c.lastVoiceAt,
		Camera:       c.frames.ID(),
		Metrics:      c.metrics.Snapshot(),
	}
	if c.audio != nil {
		s.Microphone = c.audio.ID()
	}
	if c.session != nil {
		info := c.sessionInfoLocked(time.Time{})
		s.Session = &info
	}
	return s
}

// Close releases everything the controller holds: the open session is
// finalized, both device handles closed, buffered frames freed. Safe to
// call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.finalizeLocked(c.clock())

		if err := c.frames.Close(); err != nil {
			c.log.Warn("close camera", watchlog.Error(err))
		}
		if c.audio != nil {
			if err := c.audio.Close(); err != nil {
				c.log.Warn("close microphone", watchlog.Error(err))
			}
		}
		c.preRoll.Close()
		c.frame.Close()
		c.log.Info("controller closed")
	})
}
