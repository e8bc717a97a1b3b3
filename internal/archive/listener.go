package archive

import (
	"context"
	"time"

	"github.com/mikeyg42/sentinel/internal/watcher"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

type job struct {
	videoPath string
	audioPath string
	startedAt time.Time
}

// Listener uploads every finished session's artifacts on a background
// worker so a slow or unreachable store never delays the next recording.
type Listener struct {
	watcher.ListenerFuncs

	uploader *Uploader
	queue    chan job
	done     chan struct{}
	log      watchlog.Logger
}

// NewListener starts the upload worker. Call Stop to drain it.
func NewListener(uploader *Uploader) *Listener {
	l := &Listener{
		uploader: uploader,
		queue:    make(chan job, 8),
		done:     make(chan struct{}),
		log:      watchlog.L().Named("archive"),
	}
	l.OnSessionEnded = l.enqueue
	go l.worker()
	return l
}

func (l *Listener) enqueue(info watcher.SessionInfo) {
	select {
	case l.queue <- job{videoPath: info.VideoPath, audioPath: info.AudioPath, startedAt: info.StartedAt}:
	default:
		l.log.Warn("archive queue full, session not uploaded",
			watchlog.String("video", info.VideoPath))
	}
}

func (l *Listener) worker() {
	defer close(l.done)
	for j := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		for _, path := range []string{j.videoPath, j.audioPath} {
			if path == "" {
				continue
			}
			if err := l.uploader.UploadFile(ctx, path, j.startedAt); err != nil {
				l.log.Error("upload failed",
					watchlog.String("path", path),
					watchlog.Error(err))
			}
		}
		cancel()
	}
}

// Stop drains pending uploads and waits for the worker to exit.
func (l *Listener) Stop() {
	close(l.queue)
	<-l.done
}
