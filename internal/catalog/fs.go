package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// artifactTimestamp is the layout embedded in artifact names.
const artifactTimestamp = "20060102_150405"

// Recording is one event as reconstructed from the output directory: the
// video and audio artifacts sharing a timestamp.
type Recording struct {
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	VideoPath  string    `json:"video_path,omitempty"`
	AudioPath  string    `json:"audio_path,omitempty"`
	TotalBytes int64     `json:"total_bytes"`
}

// ListRecordings scans dir for prefix_YYYYMMDD_HHMMSS artifacts, pairs
// video and audio by timestamp, and returns the newest first, capped at
// limit. Used when no database catalog is configured.
func ListRecordings(dir, videoPrefix, audioPrefix string, limit int) ([]Recording, error) {
	if limit <= 0 {
		limit = 20
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list recordings in %s: %w", dir, err)
	}

	byStamp := make(map[string]*Recording)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var stamp string
		var video bool
		switch {
		case strings.HasPrefix(name, videoPrefix+"_") && strings.HasSuffix(name, ".mp4"):
			stamp = strings.TrimSuffix(strings.TrimPrefix(name, videoPrefix+"_"), ".mp4")
			video = true
		case strings.HasPrefix(name, audioPrefix+"_") && strings.HasSuffix(name, ".wav"):
			stamp = strings.TrimSuffix(strings.TrimPrefix(name, audioPrefix+"_"), ".wav")
		default:
			continue
		}

		startedAt, err := time.ParseInLocation(artifactTimestamp, stamp, time.Local)
		if err != nil {
			continue
		}

		rec, ok := byStamp[stamp]
		if !ok {
			rec = &Recording{Name: stamp, StartedAt: startedAt}
			byStamp[stamp] = rec
		}

		path := filepath.Join(dir, name)
		if video {
			rec.VideoPath = path
		} else {
			rec.AudioPath = path
		}
		if info, err := entry.Info(); err == nil {
			rec.TotalBytes += info.Size()
		}
	}

	recordings := make([]Recording, 0, len(byStamp))
	for _, rec := range byStamp {
		recordings = append(recordings, *rec)
	}
	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].StartedAt.After(recordings[j].StartedAt)
	})
	if len(recordings) > limit {
		recordings = recordings[:limit]
	}
	return recordings, nil
}
