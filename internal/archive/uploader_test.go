package archive

import (
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	startedAt := time.Date(2026, 3, 14, 8, 15, 0, 0, time.Local)

	tests := []struct {
		name   string
		prefix string
		path   string
		want   string
	}{
		{"with prefix", "sentinel", "/var/rec/motion_20260314_081500.mp4", "sentinel/2026-03-14/motion_20260314_081500.mp4"},
		{"empty prefix", "", "/var/rec/audio_20260314_081500.wav", "2026-03-14/audio_20260314_081500.wav"},
		{"bare filename", "cams/front", "motion_20260314_081500.mp4", "cams/front/2026-03-14/motion_20260314_081500.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &Uploader{prefix: tt.prefix}
			if got := u.ObjectKey(tt.path, startedAt); got != tt.want {
				t.Errorf("ObjectKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a/motion_x.mp4", "video/mp4"},
		{"a/audio_x.WAV", "audio/wav"},
		{"a/readme.txt", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := contentTypeFor(tt.path); got != tt.want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
