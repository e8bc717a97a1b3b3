package watcher

import "sync/atomic"

// Metrics are the controller's cumulative counters. All fields are written
// on the tick goroutine and read from anywhere.
type Metrics struct {
	Ticks            atomic.Uint64
	SkippedTicks     atomic.Uint64
	FramesWritten    atomic.Uint64
	ChunksAppended   atomic.Uint64
	VoiceEvaluations atomic.Uint64
	MotionTicks      atomic.Uint64
	VoiceTicks       atomic.Uint64
	SessionsStarted  atomic.Uint64
	SessionsEnded    atomic.Uint64
	SourceErrors     atomic.Uint64
	SinkErrors       atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of Metrics, for status responses
// and periodic log reports.
type MetricsSnapshot struct {
	Ticks            uint64 `json:"ticks"`
	SkippedTicks     uint64 `json:"skipped_ticks"`
	FramesWritten    uint64 `json:"frames_written"`
	ChunksAppended   uint64 `json:"chunks_appended"`
	VoiceEvaluations uint64 `json:"voice_evaluations"`
	MotionTicks      uint64 `json:"motion_ticks"`
	VoiceTicks       uint64 `json:"voice_ticks"`
	SessionsStarted  uint64 `json:"sessions_started"`
	SessionsEnded    uint64 `json:"sessions_ended"`
	SourceErrors     uint64 `json:"source_errors"`
	SinkErrors       uint64 `json:"sink_errors"`
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Ticks:            m.Ticks.Load(),
		SkippedTicks:     m.SkippedTicks.Load(),
		FramesWritten:    m.FramesWritten.Load(),
		ChunksAppended:   m.ChunksAppended.Load(),
		VoiceEvaluations: m.VoiceEvaluations.Load(),
		MotionTicks:      m.MotionTicks.Load(),
		VoiceTicks:       m.VoiceTicks.Load(),
		SessionsStarted:  m.SessionsStarted.Load(),
		SessionsEnded:    m.SessionsEnded.Load(),
		SourceErrors:     m.SourceErrors.Load(),
		SinkErrors:       m.SinkErrors.Load(),
	}
}
