package live

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/cloud-runner/internal/identity"
)

// StreamConfig controls the server-sent events stream.
type StreamConfig struct {
	RetryDelay        time.Duration
	KeepaliveInterval time.Duration
}

// DefaultStreamConfig returns the stream defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		RetryDelay:        5 * time.Second,
		KeepaliveInterval: 10 * time.Second,
	}
}

// StreamHandler serves snapshots as server-sent events for clients that
// cannot hold a websocket open. The event id is the snapshot version, so a
// reconnecting client that already has the current version is not sent
// it again.
type StreamHandler struct {
	sessions Sessions
	hub      *Hub
	cfg      StreamConfig
}

// NewStreamHandler creates a new SSE handler.
func NewStreamHandler(sessions Sessions, hub *Hub, cfg StreamConfig) *StreamHandler {
	def := DefaultStreamConfig()
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = def.KeepaliveInterval
	}
	return &StreamHandler{sessions: sessions, hub: hub, cfg: cfg}
}

//nolint:gocognit // SSE lifecycle handling intentionally keeps branches together.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	sess, err := h.sessions.Get(r.Context(), userID, sessionID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "user_id", userID, "session_id", sessionID)
		http.Error(w, `{"error": "session unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	lastEventID, reconnect := int64(0), false
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = r.URL.Query().Get("lastEventId")
	}
	if idHeader != "" {
		if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil {
			lastEventID, reconnect = parsed, true
			slog.Info("SSE client reconnecting with Last-Event-ID", "user_id", userID, "last_event_id", lastEventID)
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if _, err := io.WriteString(w, fmt.Sprintf("retry: %d\n\n", h.cfg.RetryDelay.Milliseconds())); err != nil {
		slog.Warn("failed to write SSE retry header", "error", err, "user_id", userID)
		return
	}
	flusher.Flush()

	client := h.hub.Register(userID, sessionID)
	defer h.hub.Unregister(userID, sessionID, client)

	if snap := sess.Snapshot(); !reconnect || snap.Version > lastEventID {
		client.offer(snap)
	}

	keepalive := time.NewTicker(h.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("SSE stream disconnected", "user_id", userID, "session_id", sessionID)
			return
		case <-client.Done():
			return
		case <-client.Wake():
			snap, ok := client.Next()
			if !ok {
				continue
			}
			data, err := json.Marshal(NewFrame(snap))
			if err != nil {
				slog.Error("failed to encode snapshot", "error", err, "user_id", userID)
				continue
			}
			if err := writeSSEWithID(w, snap.Version, "snapshot", string(data)); err != nil {
				slog.Warn("failed to write SSE snapshot", "error", err, "user_id", userID)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				slog.Warn("failed to write SSE keepalive ping", "error", err, "user_id", userID)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
