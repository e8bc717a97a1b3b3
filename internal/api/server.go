// Package api exposes the control surface of the daemon: status and health
// endpoints, config read/update, recordings listing, device switching, a
// JPEG preview snapshot, and a WebSocket status hub.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/mikeyg42/sentinel/internal/config"
	"github.com/mikeyg42/sentinel/internal/watcher"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

// Controller is the slice of the watcher the API needs. Device switching is
// not on it: switches flow through a config update, which the watcher
// reconciles on its own tick.
type Controller interface {
	Status() watcher.Status
	Monitoring() bool
	SetMonitoring(enabled bool)
}

// Recordings lists past events, newest first. Wired to the Postgres catalog
// when configured, to the filesystem scanner otherwise.
type Recordings func(ctx context.Context, limit int) (any, error)

// Devices enumerates attached capture hardware.
type Devices func() (any, error)

// Options wires the server's collaborators.
type Options struct {
	Addr           string
	AllowedOrigins []string

	Controller Controller
	Config     *config.Store
	Recordings Recordings
	Devices    Devices
	Preview    *Preview
	Hub        *Hub

	Log watchlog.Logger
}

// Server is the HTTP control surface.
type Server struct {
	httpServer *http.Server
	opts       Options
	log        watchlog.Logger
}

// NewServer builds the mux and wraps it with CORS. Mutating endpoints sit
// behind a per-IP rate limit.
func NewServer(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = watchlog.L().Named("api")
	}

	s := &Server{opts: opts, log: log}

	mux := http.NewServeMux()
	limiter := NewRateLimiter(30, time.Minute)

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", limiter.Middleware(s.handlePutConfig))
	mux.HandleFunc("POST /api/monitoring", limiter.Middleware(s.handleMonitoring))
	if opts.Recordings != nil {
		mux.HandleFunc("GET /api/recordings", s.handleRecordings)
	}
	if opts.Devices != nil {
		mux.HandleFunc("GET /api/devices", s.handleDevices)
	}
	if opts.Preview != nil {
		mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	}
	if opts.Hub != nil {
		mux.HandleFunc("GET /api/ws", opts.Hub.HandleUpgrade)
	}

	s.httpServer = &http.Server{
		Addr:           opts.Addr,
		Handler:        corsMiddleware(mux, opts.AllowedOrigins),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return s
}

// Start serves in a goroutine and returns immediately.
func (s *Server) Start() {
	go func() {
		s.log.Info("api listening", watchlog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("api server stopped", watchlog.Error(err))
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware mirrors whitelisted origins and answers preflights. The
// WebSocket endpoint checks origins itself through the upgrader.
func corsMiddleware(next http.Handler, origins []string) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
