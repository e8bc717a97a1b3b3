package session

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/mikeyg42/sentinel/internal/capture"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

func TestEncodeWAVHeader(t *testing.T) {
	samples := []int16{100, -200, 300, -32768}
	wav := EncodeWAV(samples, 16000)

	if len(wav) != 44+len(samples)*2 {
		t.Fatalf("wave file length = %d, want %d", len(wav), 44+len(samples)*2)
	}

	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if string(wav[12:16]) != "fmt " {
		t.Fatal("missing fmt chunk")
	}
	if got := binary.LittleEndian.Uint16(wav[20:22]); got != 1 {
		t.Fatalf("format tag = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Fatalf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Fatalf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Fatalf("bits per sample = %d, want 16", got)
	}

	if string(wav[36:40]) != "data" {
		t.Fatal("missing data chunk")
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(samples)*2) {
		t.Fatalf("data length = %d, want %d", got, len(samples)*2)
	}

	// Samples survive little-endian round trip, including the int16 minimum.
	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(wav[44+i*2:]))
		if got != want {
			t.Fatalf("sample %d = %d, want %d", i, got, want)
		}
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	wav := EncodeWAV(nil, 16000)
	if len(wav) != 44 {
		t.Fatalf("empty wave file length = %d, want 44", len(wav))
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 0 {
		t.Fatalf("data length = %d, want 0", got)
	}
}

// newTestSession opens a session in a temp dir, skipping when no video
// codec is available on the host.
func newTestSession(t *testing.T, dir string) *Session {
	t.Helper()
	s, err := New(dir, time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC), Options{
		Width:      160,
		Height:     120,
		WriterFPS:  20,
		SampleRate: 16000,
		Log:        watchlog.NewNop(),
	})
	if err != nil {
		t.Skipf("no video codec available: %v", err)
	}
	return s
}

func TestSessionArtifactNames(t *testing.T) {
	dir := t.TempDir()
	s := newTestSession(t, dir)
	defer s.Finalize()

	if got, want := filepath.Base(s.VideoPath()), "motion_20260314_150926.mp4"; got != want {
		t.Fatalf("video name = %s, want %s", got, want)
	}
	if got, want := filepath.Base(s.AudioPath()), "audio_20260314_150926.wav"; got != want {
		t.Fatalf("audio name = %s, want %s", got, want)
	}
	if s.ID() == "" {
		t.Fatal("session has no id")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := newTestSession(t, dir)

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	const wantFrames = 7
	for i := 0; i < wantFrames; i++ {
		if err := s.WriteFrame(frame); err != nil {
			t.Fatalf("WriteFrame %d failed: %v", i, err)
		}
	}

	chunkA := &capture.AudioChunk{Samples: make([]int16, 1024), SampleRate: 16000, Channels: 1}
	chunkB := &capture.AudioChunk{Samples: make([]int16, 512), SampleRate: 16000, Channels: 1}
	s.AppendAudio(chunkA)
	s.AppendAudio(chunkB)
	s.AppendAudio(nil) // ignored

	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if got := s.FrameCount(); got != wantFrames {
		t.Fatalf("FrameCount = %d, want %d", got, wantFrames)
	}
	if st, err := os.Stat(s.VideoPath()); err != nil || st.Size() == 0 {
		t.Fatalf("video artifact missing or empty: %v", err)
	}

	// The wave file's sample count equals the bytes appended divided by 2.
	wav, err := os.ReadFile(s.AudioPath())
	if err != nil {
		t.Fatalf("read audio artifact: %v", err)
	}
	dataLen := binary.LittleEndian.Uint32(wav[40:44])
	if got, want := dataLen/2, uint32(1024+512); got != want {
		t.Fatalf("wave sample count = %d, want %d", got, want)
	}
	if got := s.SampleCount(); got != 1024+512 {
		t.Fatalf("SampleCount = %d, want %d", got, 1024+512)
	}
}

func TestSessionZeroFrameVideoRemoved(t *testing.T) {
	dir := t.TempDir()
	s := newTestSession(t, dir)
	videoPath := s.VideoPath()

	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if _, err := os.Stat(videoPath); !os.IsNotExist(err) {
		t.Fatal("empty video artifact should have been removed")
	}
	// Consumers must not be handed a path to the deleted file.
	if got := s.VideoPath(); got != "" {
		t.Fatalf("VideoPath after zero-frame Finalize = %q, want empty", got)
	}
	// The (empty) wave file is still written.
	if _, err := os.Stat(s.AudioPath()); err != nil {
		t.Fatalf("audio artifact missing: %v", err)
	}
}

func TestSessionFinalizeIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := newTestSession(t, dir)

	if err := s.Finalize(); err != nil {
		t.Fatalf("first Finalize failed: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("second Finalize failed: %v", err)
	}

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()
	if err := s.WriteFrame(frame); err == nil {
		t.Fatal("WriteFrame after Finalize should fail")
	}
}

func TestSessionRejectsBadDimensions(t *testing.T) {
	if _, err := New(t.TempDir(), time.Now(), Options{Width: 0, Height: 480, Log: watchlog.NewNop()}); err == nil {
		t.Fatal("zero width should be rejected")
	}
}
