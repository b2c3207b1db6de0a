// Package server exposes the routine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/logger"
	"github.com/samvad-hq/daily-digest/internal/routine"
	"github.com/samvad-hq/daily-digest/internal/sources"
	"github.com/samvad-hq/daily-digest/internal/storage"
)

const maxConfigBody = 1 << 20

// Runner is the routine surface the API drives.
type Runner interface {
	Run(ctx context.Context, opts routine.RunOptions) routine.Result
	Resync(ctx context.Context, runID string, opts routine.RunOptions) (routine.Result, error)
}

// Registry reads and replaces the source registry.
type Registry interface {
	Read() (sources.AppConfig, error)
	Write(cfg sources.AppConfig) error
}

// RunLog lists run log entries, newest first.
type RunLog interface {
	ReadRuns() ([]domain.RunLogEntry, error)
}

// SessionStatus reports which platforms have a usable session.
type SessionStatus interface {
	Status(bilibiliCredential string) map[domain.Platform]bool
}

// Server holds the API dependencies.
type Server struct {
	runner   Runner
	registry Registry
	runs     RunLog
	sessions SessionStatus
	log      logger.Logger
}

// New builds a Server.
func New(runner Runner, registry Registry, runs RunLog, sessions SessionStatus, log logger.Logger) *Server {
	return &Server{
		runner:   runner,
		registry: registry,
		runs:     runs,
		sessions: sessions,
		log:      logger.Ensure(log),
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/trigger", s.handleTrigger)
		r.Get("/run", s.handleRunStream)
		r.Post("/sync", s.handleSync)
		r.Get("/status", s.handleStatus)
		r.Get("/logs", s.handleLogs)
		r.Get("/config", s.handleGetConfig)
		r.Post("/config", s.handlePostConfig)
	})
	return r
}

// handleTrigger runs the routine to completion. Automated callers get the browser closed afterwards.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	// A run continues when the caller disconnects.
	ctx := context.WithoutCancel(r.Context())
	res := s.runner.Run(ctx, routine.RunOptions{
		CloseOnFinish: true,
		Progress: func(msg string) {
			s.log.DebugObj("trigger progress", "api_trigger", map[string]any{"message": msg})
		},
	})
	code := http.StatusOK
	if res.Status == routine.StatusSkipped {
		code = http.StatusTooManyRequests
	}
	writeJSON(w, code, res)
}

// handleRunStream streams progress for an interactive run; the browser stays open for review.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	sse, err := NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	progress := sse.Progress()
	progress("Starting session...")

	res := s.runner.Run(context.WithoutCancel(r.Context()), routine.RunOptions{Progress: progress})
	if res.Status == routine.StatusSkipped {
		progress(string(routine.StatusSkipped))
	}
	sse.WriteDone()
}

type syncRequest struct {
	LogID string `json:"logId"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBody)).Decode(&req); err != nil || strings.TrimSpace(req.LogID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing logId"})
		return
	}

	res, err := s.runner.Resync(context.WithoutCancel(r.Context()), req.LogID, routine.RunOptions{})
	switch {
	case errors.Is(err, storage.ErrRunNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Log not found"})
		return
	case errors.Is(err, routine.ErrNothingToSync):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No links to sync"})
		return
	case errors.Is(err, routine.ErrAlreadyRunning):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Routine is already running"})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if res.Status != routine.StatusSuccess {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Sync failed: " + res.Error})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"notebookUrl": res.NotebookURL,
		"message":     "Sync completed. Browser is open for review.",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	credential := ""
	if cfg, err := s.registry.Read(); err == nil {
		credential = cfg.BilibiliSessData
	} else {
		s.log.WarnObj("registry unreadable for status", "api_status", map[string]any{"error": err.Error()})
	}
	writeJSON(w, http.StatusOK, s.sessions.Status(credential))
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	runs, err := s.runs.ReadRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []domain.RunLogEntry{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.registry.Read()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	var cfg sources.AppConfig
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBody)).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid config: " + err.Error()})
		return
	}
	if err := s.registry.Write(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.InfoObj("source registry replaced", "api_config", map[string]any{"feeds": len(cfg.FeedURLs)})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
