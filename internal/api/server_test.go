package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mikeyg42/sentinel/internal/config"
	"github.com/mikeyg42/sentinel/internal/watcher"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

type fakeController struct {
	monitoring bool
}

func (f *fakeController) Status() watcher.Status {
	return watcher.Status{State: "idle", Monitoring: f.monitoring}
}
func (f *fakeController) Monitoring() bool           { return f.monitoring }
func (f *fakeController) SetMonitoring(enabled bool) { f.monitoring = enabled }

func newTestServer(t *testing.T) (*Server, *fakeController, *config.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Notify.Gmail.ClientSecret = "hush"
	store := config.NewStore("", cfg)
	ctrl := &fakeController{monitoring: true}

	srv := NewServer(Options{
		Addr:       ":0",
		Controller: ctrl,
		Config:     store,
		Recordings: func(_ context.Context, limit int) (any, error) {
			return []string{"r1", "r2"}, nil
		},
		Log: watchlog.NewNop(),
	})
	return srv, ctrl, store
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
}

func TestStatusReportsController(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var status watcher.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.State != "idle" || !status.Monitoring {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestGetConfigBlanksSecrets(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("config = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hush") {
		t.Error("client secret leaked in config response")
	}
}

func TestPutConfigAppliesAndKeepsSecrets(t *testing.T) {
	srv, _, store := newTestServer(t)

	cfg := store.Get()
	cfg.Detection.Sensitivity = 7
	cfg.Notify.Gmail.ClientSecret = "" // blank means keep
	payload, _ := json.Marshal(cfg)

	rec := do(t, srv, http.MethodPut, "/api/config", string(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("put config = %d: %s", rec.Code, rec.Body.String())
	}

	after := store.Get()
	if after.Detection.Sensitivity != 7 {
		t.Errorf("sensitivity = %d, want 7", after.Detection.Sensitivity)
	}
	if after.Notify.Gmail.ClientSecret != "hush" {
		t.Errorf("secret overwritten: %q", after.Notify.Gmail.ClientSecret)
	}
}

// Device switching has no dedicated endpoint: a new camera index lands in
// the config store and the watcher reconciles it on its next tick.
func TestPutConfigSwitchesCamera(t *testing.T) {
	srv, _, store := newTestServer(t)

	cfg := store.Get()
	cfg.Capture.CameraIndex = 2
	payload, _ := json.Marshal(cfg)

	rec := do(t, srv, http.MethodPut, "/api/config", string(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("put config = %d: %s", rec.Code, rec.Body.String())
	}
	if got := store.Get().Capture.CameraIndex; got != 2 {
		t.Errorf("camera index = %d, want 2", got)
	}
}

func TestPutConfigRejectsUnknownFields(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPut, "/api/config", `{"bogus":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("put config = %d, want 400", rec.Code)
	}
}

func TestMonitoringToggle(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/monitoring", `{"enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("monitoring = %d: %s", rec.Code, rec.Body.String())
	}
	if ctrl.monitoring {
		t.Error("monitoring still enabled")
	}
}

func TestRecordingsLimitValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)
	if rec := do(t, srv, http.MethodGet, "/api/recordings?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/recordings?limit=5", ""); rec.Code != http.StatusOK {
		t.Errorf("good limit = %d, want 200", rec.Code)
	}
}

func TestSnapshotUnavailableWithoutPreview(t *testing.T) {
	srv, _, _ := newTestServer(t)
	// No preview wired; route should not exist.
	if rec := do(t, srv, http.MethodGet, "/api/snapshot", ""); rec.Code != http.StatusNotFound {
		t.Errorf("snapshot = %d, want 404", rec.Code)
	}
}

func TestRateLimiterAllows(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third request within window should be limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("other IPs have their own budget")
	}
}
