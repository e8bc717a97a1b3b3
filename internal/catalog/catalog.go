// Package catalog keeps the history of recording events: a Postgres-backed
// store when a database is configured, and a filesystem scan of the output
// directory as the no-dependency fallback for listings.
package catalog

import (
	"context"
	"time"

	"github.com/lib/pq"
)

// Event is one finished recording session as cataloged.
type Event struct {
	ID              string         `db:"id" json:"id"`
	StartedAt       time.Time      `db:"started_at" json:"started_at"`
	EndedAt         time.Time      `db:"ended_at" json:"ended_at"`
	DurationSeconds float64        `db:"duration_seconds" json:"duration_seconds"`
	VideoPath       string         `db:"video_path" json:"video_path"`
	AudioPath       string         `db:"audio_path" json:"audio_path"`
	Frames          int64          `db:"frames" json:"frames"`
	Samples         int64          `db:"samples" json:"samples"`
	Triggers        pq.StringArray `db:"triggers" json:"triggers"`
}

// Store persists and queries events.
type Store interface {
	SaveEvent(ctx context.Context, event *Event) error
	RecentEvents(ctx context.Context, limit int) ([]Event, error)
	HealthCheck(ctx context.Context) error
	Close() error
}
