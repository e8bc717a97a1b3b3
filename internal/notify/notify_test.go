package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mikeyg42/sentinel/internal/watcher"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeNotifier) Notify(_ context.Context, info watcher.SessionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, info.ID)
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

func (f *fakeNotifier) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestListenerCooldownSuppresses(t *testing.T) {
	fake := &fakeNotifier{}
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	l := &Listener{
		notifier: fake,
		cooldown: 5 * time.Minute,
		now:      func() time.Time { return now },
		log:      watchlog.NewNop(),
	}

	l.deliver(watcher.SessionInfo{ID: "first"})
	l.deliver(watcher.SessionInfo{ID: "too-soon"})

	now = now.Add(6 * time.Minute)
	l.deliver(watcher.SessionInfo{ID: "after-cooldown"})

	got := fake.ids()
	want := []string{"first", "after-cooldown"}
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent %v, want %v", got, want)
		}
	}
}
