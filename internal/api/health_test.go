package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		store      Pinger
		wantStatus int
		wantStore  string
	}{
		{"no store", nil, http.StatusOK, "disabled"},
		{"healthy", pingerFunc(func(context.Context) error { return nil }), http.StatusOK, "ok"},
		{"down", pingerFunc(func(context.Context) error { return errors.New("closed") }), http.StatusServiceUnavailable, "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.store, nil, "heuristic").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var got healthResponse
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got.Store != tt.wantStore || got.Collaborator != "heuristic" {
				t.Fatalf("unexpected body %+v", got)
			}
		})
	}
}
