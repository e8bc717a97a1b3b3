package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mikeyg42/sentinel/internal/watchlog"
)

// Postgres implements Store on PostgreSQL via sqlx.
type Postgres struct {
	db  *sqlx.DB
	log watchlog.Logger
}

// NewPostgres connects, configures the pool, and creates the schema if it
// does not exist yet.
func NewPostgres(dsn string, maxOpenConns, maxIdleConns int) (*Postgres, error) {
	if maxOpenConns <= 0 {
		maxOpenConns = 10
	}
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog database: %w", err)
	}

	s := &Postgres{db: db, log: watchlog.L().Named("catalog")}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize catalog schema: %w", err)
	}

	s.log.Info("catalog connected",
		watchlog.Int("max_open_conns", maxOpenConns),
		watchlog.Int("max_idle_conns", maxIdleConns))
	return s, nil
}

func (s *Postgres) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		duration_seconds FLOAT NOT NULL,
		video_path VARCHAR(500) NOT NULL,
		audio_path VARCHAR(500) NOT NULL,
		frames BIGINT NOT NULL DEFAULT 0,
		samples BIGINT NOT NULL DEFAULT 0,
		triggers TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_events_started_at ON events(started_at DESC);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// SaveEvent inserts one finished event.
func (s *Postgres) SaveEvent(ctx context.Context, event *Event) error {
	const query = `
	INSERT INTO events (
		id, started_at, ended_at, duration_seconds,
		video_path, audio_path, frames, samples, triggers
	) VALUES (
		:id, :started_at, :ended_at, :duration_seconds,
		:video_path, :audio_path, :frames, :samples, :triggers
	)`
	if _, err := s.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("save event %s: %w", event.ID, err)
	}
	return nil
}

// RecentEvents returns the newest events first.
func (s *Postgres) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	var events []Event
	const query = `
	SELECT id, started_at, ended_at, duration_seconds,
	       video_path, audio_path, frames, samples, triggers
	FROM events
	ORDER BY started_at DESC
	LIMIT $1`
	if err := s.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	return events, nil
}

// HealthCheck pings the database.
func (s *Postgres) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("catalog health check: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	return s.db.Close()
}

var _ Store = (*Postgres)(nil)
