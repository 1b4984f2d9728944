// GitHub Cloud Runner server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/cloud-runner/internal/agent"
	"github.com/ashureev/cloud-runner/internal/api"
	"github.com/ashureev/cloud-runner/internal/config"
	"github.com/ashureev/cloud-runner/internal/grpchealth"
	"github.com/ashureev/cloud-runner/internal/identity"
	"github.com/ashureev/cloud-runner/internal/live"
	"github.com/ashureev/cloud-runner/internal/logging"
	"github.com/ashureev/cloud-runner/internal/middleware"
	"github.com/ashureev/cloud-runner/internal/pacing"
	"github.com/ashureev/cloud-runner/internal/session"
	"github.com/ashureev/cloud-runner/internal/store"
	"github.com/ashureev/cloud-runner/web"
)

func main() {
	// .env is loaded before the logger so it can set LOG_LEVEL.
	envErr := godotenv.Load()

	logger := logging.New(logging.Options{Level: os.Getenv("LOG_LEVEL")})
	slog.SetDefault(logger)
	if envErr != nil {
		slog.Info("No .env file found, using environment variables")
	}

	// "healthcheck" probes a running server's gRPC health endpoint and
	// exits 0 or 1, for container HEALTHCHECK directives.
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(healthcheck())
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "ai_provider", cfg.AI.Provider)

	table, err := pacing.LoadTable(cfg.PacingFile)
	if err != nil {
		return fmt.Errorf("load pacing table: %w", err)
	}

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collab, err := agent.New(ctx, agent.Config{
		Provider:        cfg.AI.Provider,
		GeminiAPIKey:    cfg.AI.GeminiAPIKey,
		GeminiModel:     cfg.AI.GeminiModel,
		GeminiBaseURL:   cfg.AI.GeminiBaseURL,
		SearchGrounding: cfg.AI.SearchGrounding,
		OpenAIAPIKey:    cfg.AI.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.AI.OpenAIBaseURL,
		OpenAIModel:     cfg.AI.OpenAIModel,
	})
	if err != nil {
		return fmt.Errorf("initialize AI collaborator: %w", err)
	}

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}

	svc := agent.NewService(collab, cfg.AI.Timeout, conversationLogger)
	defer svc.Close()
	slog.Info("AI collaborator ready", "provider", svc.Name(), "model", cfg.Model())

	// Sessions and live push.
	hub := live.NewHub()
	sessions := session.NewManager(svc, repo, session.Options{Pacing: table})
	sessions.Subscribe(hub.Publish)
	defer sessions.Close()

	session.StartSweeper(ctx, sessions, repo, session.SweeperConfig{
		Interval:  cfg.SweepInterval,
		IdleEvict: cfg.SessionIdleEvict,
		TTL:       cfg.SessionTTL,
	})

	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Close()

	// Initialize handlers.
	apiHandler := api.NewHandler(sessions, limiter, api.Info{
		Provider: svc.Name(),
		Model:    cfg.Model(),
		Pacing:   table,
	})
	healthHandler := api.NewHealthHandler(repo, sessions, svc.Name())
	wsHandler := live.NewWebSocketHandler(sessions, hub, cfg.FrontendURL, cfg.IsDevelopment())
	streamHandler := live.NewStreamHandler(sessions, hub, live.StreamConfig{
		RetryDelay:        cfg.SSE.RetryDelay,
		KeepaliveInterval: cfg.SSE.KeepaliveInterval,
	})

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	// Health stays outside identity so probes do not mint cookies.
	r.Method(http.MethodGet, "/health", healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		r.Route("/api", func(r chi.Router) {
			apiHandler.RegisterRoutes(r)
			r.Method(http.MethodGet, "/session/stream", streamHandler)
		})
		r.Method(http.MethodGet, "/ws/session", wsHandler)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Websocket and SSE connections are long lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.GRPCHealthAddr != "" {
		hs := grpchealth.New(repo, grpchealth.DefaultConfig(), logger)
		go func() {
			if err := hs.ListenAndServe(ctx, cfg.GRPCHealthAddr); err != nil {
				errCh <- err
			}
		}()
	}

	// Wait for shutdown signal.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	stop()

	slog.Info("Shutting down gracefully...")
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}

func healthcheck() int {
	addr := os.Getenv("GRPC_HEALTH_ADDR")
	if addr == "" {
		slog.Error("GRPC_HEALTH_ADDR is not set")
		return 1
	}
	if addr[0] == ':' {
		addr = "127.0.0.1" + addr
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := grpchealth.Probe(ctx, addr, grpchealth.ServiceName); err != nil {
		slog.Error("Health check failed", "error", err)
		return 1
	}
	return 0
}
