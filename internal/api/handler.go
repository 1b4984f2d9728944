// Package api provides the JSON HTTP handlers of the runner.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/cloud-runner/internal/domain"
	"github.com/ashureev/cloud-runner/internal/identity"
	"github.com/ashureev/cloud-runner/internal/pacing"
	"github.com/ashureev/cloud-runner/internal/session"
	"github.com/ashureev/cloud-runner/internal/view"
)

const maxBodyBytes = 64 << 10

// Sessions resolves the caller's session.
type Sessions interface {
	Get(ctx context.Context, userID, sessionID string) (*session.Session, error)
	Len() int
}

// Info describes the running configuration to the frontend.
type Info struct {
	Provider string
	Model    string
	Pacing   pacing.Table
}

// Handler serves the session API.
type Handler struct {
	sessions Sessions
	limiter  *RateLimiter
	info     Info
}

// NewHandler creates a new Handler. A nil limiter disables rate limiting.
func NewHandler(sessions Sessions, limiter *RateLimiter, info Info) *Handler {
	return &Handler{
		sessions: sessions,
		limiter:  limiter,
		info:     info,
	}
}

// RegisterRoutes mounts the API under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/config", h.GetConfig)
	r.Get("/session", h.GetSession)
	r.With(h.limit).Post("/analyze", h.Analyze)
	r.Post("/execute", h.Execute)
	r.With(h.limit).Post("/interact", h.Interact)
	r.Post("/reset", h.Reset)
}

// SessionResponse is a snapshot with its view projection.
type SessionResponse struct {
	Version int64               `json:"version"`
	State   domain.SessionState `json:"state"`
	View    view.View           `json:"view"`
}

func newSessionResponse(snap session.Snapshot) SessionResponse {
	return SessionResponse{
		Version: snap.Version,
		State:   snap.State,
		View:    view.Project(snap.State),
	}
}

type configResponse struct {
	Provider      string           `json:"provider"`
	Model         string           `json:"model,omitempty"`
	PacingMS      map[string]int64 `json:"pacing_ms"`
	AnalysisSteps []string         `json:"analysis_steps"`
}

// GetConfig returns the provider and pacing in use.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, configResponse{
		Provider:      h.info.Provider,
		Model:         h.info.Model,
		PacingMS:      h.info.Pacing.Milliseconds(),
		AnalysisSteps: pacing.AnalysisLabels,
	})
}

// GetSession returns the caller's current snapshot.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, newSessionResponse(sess.Snapshot()))
}

type analyzeRequest struct {
	RepoURL string `json:"repo_url"`
}

// Analyze starts the scripted analysis of a repository.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decode(w, r, &req) {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Analyze(req.RepoURL); err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusAccepted, newSessionResponse(sess.Snapshot()))
}

// Execute starts the scripted execution of the stored plan.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Execute(); err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusAccepted, newSessionResponse(sess.Snapshot()))
}

type interactRequest struct {
	Message string `json:"message"`
}

type interactResponse struct {
	Message domain.InteractionMessage `json:"message"`
	Session SessionResponse           `json:"session"`
}

// Interact sends one message to the simulated application.
func (h *Handler) Interact(w http.ResponseWriter, r *http.Request) {
	var req interactRequest
	if !decode(w, r, &req) {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	msg, err := sess.Interact(req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusAccepted, interactResponse{
		Message: msg,
		Session: newSessionResponse(sess.Snapshot()),
	})
}

// Reset returns the session to its initial state.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Reset()
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, newSessionResponse(snap))
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	sess, err := h.sessions.Get(r.Context(), userID, sessionID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "user_id", userID, "session_id", sessionID)
		Error(w, http.StatusServiceUnavailable, "session unavailable")
		return nil, false
	}
	return sess, true
}

func (h *Handler) limit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return h.limiter.Middleware(next)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// StatusFor maps an operation error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case domain.KindOf(err) == domain.KindValidation, errors.Is(err, domain.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBusy),
		errors.Is(err, domain.ErrInvalidPhase),
		errors.Is(err, domain.ErrNoPlan),
		errors.Is(err, domain.ErrNotExecuted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Message
	}
	if status == http.StatusInternalServerError {
		slog.Error("Session operation failed", "error", err)
		msg = "internal error"
	}
	Error(w, status, msg)
}
