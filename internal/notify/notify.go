// Package notify sends email alerts when a recording starts. Delivery runs
// on a worker with a cooldown so a restless scene cannot flood an inbox.
package notify

import (
	"context"
	"time"

	"github.com/mikeyg42/sentinel/internal/watcher"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

// Notifier delivers one alert about a started session.
type Notifier interface {
	Notify(ctx context.Context, info watcher.SessionInfo) error
	Close() error
}

// Listener bridges controller events to a Notifier. Alerts closer together
// than the cooldown are dropped, not queued.
type Listener struct {
	watcher.ListenerFuncs

	notifier Notifier
	cooldown time.Duration
	now      func() time.Time

	queue chan watcher.SessionInfo
	done  chan struct{}
	log   watchlog.Logger

	lastSent time.Time
}

// NewListener starts the delivery worker. Call Stop to drain it.
func NewListener(notifier Notifier, cooldown time.Duration) *Listener {
	l := &Listener{
		notifier: notifier,
		cooldown: cooldown,
		now:      time.Now,
		queue:    make(chan watcher.SessionInfo, 4),
		done:     make(chan struct{}),
		log:      watchlog.L().Named("notify"),
	}
	l.OnSessionStarted = l.enqueue
	go l.worker()
	return l
}

func (l *Listener) enqueue(info watcher.SessionInfo) {
	select {
	case l.queue <- info:
	default:
		l.log.Warn("notify queue full, alert dropped", watchlog.String("id", info.ID))
	}
}

func (l *Listener) worker() {
	defer close(l.done)
	for info := range l.queue {
		l.deliver(info)
	}
}

func (l *Listener) deliver(info watcher.SessionInfo) {
	now := l.now()
	if !l.lastSent.IsZero() && now.Sub(l.lastSent) < l.cooldown {
		l.log.Debug("alert suppressed by cooldown", watchlog.String("id", info.ID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := l.notifier.Notify(ctx, info)
	cancel()
	if err != nil {
		l.log.Error("alert delivery failed",
			watchlog.String("id", info.ID),
			watchlog.Error(err))
		return
	}
	l.lastSent = now
}

// Stop drains pending alerts and waits for the worker to exit.
func (l *Listener) Stop() {
	close(l.queue)
	<-l.done
}
