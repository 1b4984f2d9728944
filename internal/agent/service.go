package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/cloud-runner/internal/domain"
)

// Service wraps a Collaborator with a request timeout and conversation
// logging.
type Service struct {
	collab  Collaborator
	timeout time.Duration
	log     ConversationLogger
}

// NewService creates a collaborator service. A nil logger disables
// conversation logging.
func NewService(collab Collaborator, timeout time.Duration, log ConversationLogger) *Service {
	if log == nil {
		log = noopConversationLogger{}
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Service{
		collab:  collab,
		timeout: timeout,
		log:     log,
	}
}

// Name returns the backing provider name.
func (s *Service) Name() string {
	return s.collab.Name()
}

// InferPlan asks the collaborator for a plan. Expiry of the timeout is
// reported like any other failure.
func (s *Service) InferPlan(ctx context.Context, req PlanRequest) (*domain.ExecutionPlan, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.log.Log(ConversationLogEvent{
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Channel:    "analysis",
		Direction:  "outbound",
		EventType:  "plan_request",
		ContentRaw: req.RepoURL,
		Meta:       map[string]any{"provider": s.collab.Name()},
	})

	plan, err := s.collab.InferPlan(ctx, req.RepoURL)
	if err != nil {
		slog.Warn("Plan inference failed",
			"provider", s.collab.Name(),
			"repo_url", req.RepoURL,
			"session_id", req.SessionID,
			"error", err,
		)
		s.logError("analysis", "plan_error", req.UserID, req.SessionID, err, start)
		return nil, fmt.Errorf("infer plan via %s: %w", s.collab.Name(), err)
	}

	raw, _ := json.Marshal(plan)
	s.log.Log(ConversationLogEvent{
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Channel:    "analysis",
		Direction:  "inbound",
		EventType:  "plan_result",
		ContentRaw: string(raw),
		Meta: map[string]any{
			"provider":    s.collab.Name(),
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
	slog.Info("Plan inferred",
		"provider", s.collab.Name(),
		"session_id", req.SessionID,
		"project_type", plan.ProjectType,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return plan, nil
}

// SimulateReply asks the collaborator to answer as the application.
func (s *Service) SimulateReply(ctx context.Context, req ReplyRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.log.Log(ConversationLogEvent{
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Channel:    "interaction",
		Direction:  "outbound",
		EventType:  "interaction_user_message",
		ContentRaw: req.Message,
		Meta: map[string]any{
			"provider":        s.collab.Name(),
			"transcript_size": len(req.Transcript),
		},
	})

	reply, err := s.collab.SimulateReply(ctx, req)
	if err != nil {
		slog.Warn("Interaction reply failed",
			"provider", s.collab.Name(),
			"session_id", req.SessionID,
			"error", err,
		)
		s.logError("interaction", "interaction_error", req.UserID, req.SessionID, err, start)
		return "", fmt.Errorf("simulate reply via %s: %w", s.collab.Name(), err)
	}

	s.log.Log(ConversationLogEvent{
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Channel:    "interaction",
		Direction:  "inbound",
		EventType:  "interaction_app_reply",
		ContentRaw: reply,
		Meta: map[string]any{
			"provider":    s.collab.Name(),
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
	return reply, nil
}

// Close flushes the conversation log.
func (s *Service) Close() {
	if err := s.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}

func (s *Service) logError(channel, eventType, userID, sessionID string, err error, start time.Time) {
	s.log.Log(ConversationLogEvent{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  eventType,
		ContentRaw: err.Error(),
		Meta: map[string]any{
			"provider":    s.collab.Name(),
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
}
