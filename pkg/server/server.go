// Package server exposes the sync pipeline over HTTP for the daemon.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/fieldops/regsync/pkg/syncer"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Pipeline is the subset of syncer.Syncer the handlers call.
type Pipeline interface {
	IsOnline(ctx context.Context) bool
	Capture(ctx context.Context, agentID string, customer registration.CustomerData, agent registration.AgentData) (syncer.CaptureResult, error)
	SyncEverything(ctx context.Context, agentID string, onProgress syncer.ProgressFunc) registration.SyncResult
	RetryPending(ctx context.Context, id string) (string, error)
}

// Queue is the read side of the local queue.
type Queue interface {
	ListPending(ctx context.Context, agentID string) ([]registration.PendingRegistration, error)
	Count(ctx context.Context, agentID string) (int, error)
}

// Remote counts records in the shared datastore that still lack a forms
// submission.
type Remote interface {
	CountUnsubmitted(ctx context.Context, agentID string) (int, error)
}

// Handler serves the control API.
type Handler struct {
	pipeline Pipeline
	queue    Queue
	remote   Remote
}

// New builds a handler. A nil remote disables the unsynced count route.
func New(pipeline Pipeline, queue Queue, remote Remote) *Handler {
	return &Handler{pipeline: pipeline, queue: queue, remote: remote}
}

// Routes mounts every endpoint on a chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", h.Health)
	r.Route("/agents/{agentID}", func(r chi.Router) {
		r.Get("/pending", h.ListPending)
		r.Get("/pending/count", h.CountPending)
		if h.remote != nil {
			r.Get("/unsynced/count", h.CountUnsynced)
		}
		r.Post("/registrations", h.Capture)
		r.Post("/sync", h.Sync)
	})
	r.Post("/pending/{id}/retry", h.Retry)
	return r
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("encode response failed")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

// Health reports connectivity to the remote datastore.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"online": h.pipeline.IsOnline(r.Context())})
}

// ListPending returns the agent's queued registrations.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	entries, err := h.queue.ListPending(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		log.Warn().Err(err).Msg("list pending failed")
		entries = nil
	}
	if entries == nil {
		entries = []registration.PendingRegistration{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// CountPending returns the number of queued registrations.
func (h *Handler) CountPending(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.Count(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		log.Warn().Err(err).Msg("count pending failed")
		n = 0
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// CountUnsynced returns how many of the agent's datastore records have not
// reached the forms service yet.
func (h *Handler) CountUnsynced(w http.ResponseWriter, r *http.Request) {
	if !h.pipeline.IsOnline(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "offline", "Device is offline")
		return
	}
	n, err := h.remote.CountUnsubmitted(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		log.Warn().Err(err).Msg("count unsynced failed")
		writeError(w, http.StatusBadGateway, "datastore_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

type captureRequest struct {
	Customer registration.CustomerData `json:"customer"`
	Agent    registration.AgentData    `json:"agent"`
}

// Capture stores a new registration, online or queued.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	out, err := h.pipeline.Capture(r.Context(), chi.URLParam(r, "agentID"), req.Customer, req.Agent)
	if err != nil {
		if registration.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, "invalid_registration", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "capture_failed", err.Error())
		return
	}
	status := http.StatusCreated
	if out.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, out)
}

// Sync runs a full sync for the agent and returns the aggregated result.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	res := h.pipeline.SyncEverything(r.Context(), chi.URLParam(r, "agentID"), nil)
	writeJSON(w, http.StatusOK, res)
}

type retryResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Retry runs one queue entry now.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	msg, err := h.pipeline.RetryPending(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, retryResponse{Success: true, Message: msg})
	case errors.Is(err, syncer.ErrNotQueued):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, syncer.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, "offline", msg)
	case msg != "":
		writeJSON(w, http.StatusOK, retryResponse{Success: false, Message: msg})
	default:
		writeError(w, http.StatusInternalServerError, "retry_failed", err.Error())
	}
}
