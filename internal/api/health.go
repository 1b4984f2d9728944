package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports store reachability and the active collaborator.
type HealthHandler struct {
	store    Pinger
	sessions Sessions
	provider string
}

// NewHealthHandler creates a health handler. A nil store is reported as
// disabled.
func NewHealthHandler(store Pinger, sessions Sessions, provider string) *HealthHandler {
	return &HealthHandler{store: store, sessions: sessions, provider: provider}
}

type healthResponse struct {
	Status       string `json:"status"`
	Store        string `json:"store"`
	Collaborator string `json:"collaborator"`
	Sessions     int    `json:"sessions"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "ok",
		Store:        "disabled",
		Collaborator: h.provider,
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Len()
	}

	status := http.StatusOK
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			resp.Status, resp.Store = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Store = "ok"
		}
	}
	JSON(w, status, resp)
}
