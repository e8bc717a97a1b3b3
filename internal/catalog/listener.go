package catalog

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/mikeyg42/sentinel/internal/watcher"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

// Recorder observes controller transitions and writes finished sessions to
// the store on its own worker, so inserts never block a tick.
type Recorder struct {
	watcher.ListenerFuncs

	store Store
	queue chan Event
	done  chan struct{}
	log   watchlog.Logger
}

// NewRecorder starts the worker. Call Stop to drain and shut it down.
func NewRecorder(store Store) *Recorder {
	r := &Recorder{
		store: store,
		queue: make(chan Event, 16),
		done:  make(chan struct{}),
		log:   watchlog.L().Named("catalog"),
	}
	r.OnSessionEnded = r.enqueue
	go r.worker()
	return r
}

func (r *Recorder) enqueue(info watcher.SessionInfo) {
	event := Event{
		ID:              info.ID,
		StartedAt:       info.StartedAt,
		EndedAt:         info.EndedAt,
		DurationSeconds: info.EndedAt.Sub(info.StartedAt).Seconds(),
		VideoPath:       info.VideoPath,
		AudioPath:       info.AudioPath,
		Frames:          info.Frames,
		Samples:         info.Samples,
		Triggers:        pq.StringArray(info.Triggers),
	}

	select {
	case r.queue <- event:
	default:
		r.log.Warn("catalog queue full, event dropped", watchlog.String("id", event.ID))
	}
}

func (r *Recorder) worker() {
	defer close(r.done)
	for event := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := r.store.SaveEvent(ctx, &event); err != nil {
			r.log.Error("save event failed",
				watchlog.String("id", event.ID),
				watchlog.Error(err))
		}
		cancel()
	}
}

// Stop drains the queue and waits for the worker to exit.
func (r *Recorder) Stop() {
	close(r.queue)
	<-r.done
}
