package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mikeyg42/sentinel/internal/config"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Controller.Status())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.opts.Config.Get()
	cfg.Notify.Gmail.ClientSecret = ""
	cfg.Notify.Gmail.TokenKey = ""
	cfg.Archive.SecretKey = ""
	writeJSON(w, http.StatusOK, cfg)
}

// handlePutConfig accepts a full configuration document. Accepted changes
// are persisted; the controller picks them up on its next tick snapshot.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var incoming config.Config
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config payload: "+err.Error())
		return
	}

	current := s.opts.Config.Get()
	// Secrets are blanked on GET; an empty value on PUT means keep.
	if incoming.Notify.Gmail.ClientSecret == "" {
		incoming.Notify.Gmail.ClientSecret = current.Notify.Gmail.ClientSecret
	}
	if incoming.Notify.Gmail.TokenKey == "" {
		incoming.Notify.Gmail.TokenKey = current.Notify.Gmail.TokenKey
	}
	if incoming.Archive.SecretKey == "" {
		incoming.Archive.SecretKey = current.Archive.SecretKey
	}

	updated, err := s.opts.Config.Update(func(cfg *config.Config) {
		*cfg = incoming
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.log.Info("config updated via api")
	updated.Notify.Gmail.ClientSecret = ""
	updated.Notify.Gmail.TokenKey = ""
	updated.Archive.SecretKey = ""
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	s.opts.Controller.SetMonitoring(body.Enabled)
	s.log.Info("monitoring toggled", watchlog.Bool("enabled", body.Enabled))
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.opts.Controller.Monitoring()})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := s.opts.Recordings(r.Context(), limit)
	if err != nil {
		s.log.Error("recordings listing failed", watchlog.Error(err))
		writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.opts.Devices()
	if err != nil {
		s.log.Error("device enumeration failed", watchlog.Error(err))
		writeError(w, http.StatusInternalServerError, "enumeration failed")
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	jpeg, ok := s.opts.Preview.Snapshot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no frame available yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(jpeg)
}
