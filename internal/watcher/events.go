package watcher

import "time"

// State is the controller's lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	if s == StateRecording {
		return "recording"
	}
	return "idle"
}

// DetectionResult is the outcome of one tick's classification. It is a
// value returned by the tick, never a flag stored on another object.
type DetectionResult struct {
	Motion bool `json:"motion"`
	Voice  bool `json:"voice"`
}

// Triggers names the activity kinds present in the result.
func (r DetectionResult) Triggers() []string {
	var t []string
	if r.Motion {
		t = append(t, "motion")
	}
	if r.Voice {
		t = append(t, "voice")
	}
	return t
}

// SessionInfo describes one recording event. EndedAt is zero while the
// session is still open.
type SessionInfo struct {
	ID        string    `json:"id"`
	VideoPath string    `json:"video_path"`
	AudioPath string    `json:"audio_path"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Frames    int64     `json:"frames"`
	Samples   int64     `json:"samples"`
	Triggers  []string  `json:"triggers,omitempty"`
}

// Listener observes controller transitions. Callbacks run inline on the
// tick goroutine and must not block; anything slow belongs on the
// listener's own worker.
type Listener interface {
	// DetectionChanged fires when either activity flag flips.
	DetectionChanged(result DetectionResult)
	// SessionStarted fires after a new session opened.
	SessionStarted(info SessionInfo)
	// SessionEnded fires after a session was finalized.
	SessionEnded(info SessionInfo)
}

// ListenerFuncs adapts plain functions to Listener. Nil functions are
// skipped.
type ListenerFuncs struct {
	OnDetectionChanged func(DetectionResult)
	OnSessionStarted   func(SessionInfo)
	OnSessionEnded     func(SessionInfo)
}

func (l ListenerFuncs) DetectionChanged(result DetectionResult) {
	if l.OnDetectionChanged != nil {
		l.OnDetectionChanged(result)
	}
}

func (l ListenerFuncs) SessionStarted(info SessionInfo) {
	if l.OnSessionStarted != nil {
		l.OnSessionStarted(info)
	}
}

func (l ListenerFuncs) SessionEnded(info SessionInfo) {
	if l.OnSessionEnded != nil {
		l.OnSessionEnded(info)
	}
}

// Status is the controller's externally visible state, returned by
// Status() and pushed over the status hub.
type Status struct {
	State        string          `json:"state"`
	Monitoring   bool            `json:"monitoring"`
	Detection    DetectionResult `json:"detection"`
	LastMotionAt time.Time       `json:"last_motion_at,omitempty"`
	LastVoiceAt  time.Time       `json:"last_voice_at,omitempty"`
	Camera       string          `json:"camera"`
	Microphone   string          `json:"microphone,omitempty"`
	Session      *SessionInfo    `json:"session,omitempty"`
	Metrics      MetricsSnapshot `json:"metrics"`
}
