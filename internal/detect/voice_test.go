package detect

import (
	"testing"

	"github.com/mikeyg42/sentinel/internal/capture"
)

// flatChunk builds a chunk whose every sample has the given magnitude, so
// the mean magnitude equals it exactly.
func flatChunk(magnitude int16, n int) *capture.AudioChunk {
	samples := make([]int16, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = magnitude
		} else {
			samples[i] = -magnitude
		}
	}
	return &capture.AudioChunk{Samples: samples, SampleRate: 16000, Channels: 1}
}

func TestVoiceDetectorThreshold(t *testing.T) {
	testCases := []struct {
		name      string
		magnitude int16
		want      bool
	}{
		{"WellAbove", 1600, true},
		{"WellBelow", 1400, false},
		// The threshold itself is not voice: the comparison is strictly
		// greater-than.
		{"ExactBoundary", 1500, false},
		{"JustAbove", 1501, true},
		{"Silence", 0, false},
	}

	d := NewVoiceDetector(DefaultVoiceThreshold)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.Classify(flatChunk(tc.magnitude, 1024)); got != tc.want {
				t.Fatalf("Classify(mean=%d) = %v, want %v", tc.magnitude, got, tc.want)
			}
		})
	}
}

func TestVoiceDetectorDegenerateChunks(t *testing.T) {
	d := NewVoiceDetector(0) // falls back to the default threshold

	if d.Classify(nil) {
		t.Fatal("nil chunk reported voice")
	}
	if d.Classify(&capture.AudioChunk{SampleRate: 16000, Channels: 1}) {
		t.Fatal("empty chunk reported voice")
	}
}

func TestVoiceDetectorExtremeSamples(t *testing.T) {
	// A chunk of nothing but -32768 must not overflow the magnitude sum.
	d := NewVoiceDetector(DefaultVoiceThreshold)
	samples := make([]int16, 4096)
	for i := range samples {
		samples[i] = -32768
	}
	chunk := &capture.AudioChunk{Samples: samples, SampleRate: 16000, Channels: 1}
	if !d.Classify(chunk) {
		t.Fatal("full-scale chunk should report voice")
	}

	stats := d.Stats()
	if stats.LastMean != 32768 {
		t.Fatalf("LastMean = %v, want 32768", stats.LastMean)
	}
}

func TestVoiceDetectorStats(t *testing.T) {
	d := NewVoiceDetector(DefaultVoiceThreshold)
	d.Classify(flatChunk(2000, 256))
	d.Classify(flatChunk(100, 256))

	stats := d.Stats()
	if stats.ChunksProcessed != 2 {
		t.Fatalf("ChunksProcessed = %d, want 2", stats.ChunksProcessed)
	}
	if stats.VoiceChunks != 1 {
		t.Fatalf("VoiceChunks = %d, want 1", stats.VoiceChunks)
	}
	if stats.LastVoiceAt.IsZero() {
		t.Fatal("LastVoiceAt not set after a voice chunk")
	}
}
