package service

import (
	"context"
	"log/slog"

	"github.com/Strob0t/depositrelay/internal/adapter/otel"
	"github.com/Strob0t/depositrelay/internal/domain/deposit"
	"github.com/Strob0t/depositrelay/internal/logger"
	"github.com/Strob0t/depositrelay/internal/port/broadcast"
)

// Webhook outcomes.
const (
	OutcomePublished = "published"
	OutcomeIgnored   = "ignored"
	OutcomeInvalid   = "invalid"
)

// Invalidator drops derived state for a deposit after a status change.
type Invalidator interface {
	Invalidate(ctx context.Context, depositID string)
}

// WebhookRecorder counts webhook outcomes.
type WebhookRecorder interface {
	WebhookReceived(ctx context.Context, outcome string)
}

// EventService turns authenticated provider webhooks into status broadcasts.
type EventService struct {
	publisher   broadcast.Publisher
	invalidator Invalidator
	recorder    WebhookRecorder
}

// NewEventService creates an EventService. invalidator and recorder may be nil.
func NewEventService(p broadcast.Publisher, inv Invalidator, rec WebhookRecorder) *EventService {
	return &EventService{publisher: p, invalidator: inv, recorder: rec}
}

// HandleWebhook publishes the deposit status carried by body, if any.
// Malformed bodies and non-deposit events are reported through the outcome,
// never as errors; only a canceled context is.
func (s *EventService) HandleWebhook(ctx context.Context, body []byte) (string, error) {
	outcome, err := s.handleWebhook(ctx, body)
	if s.recorder != nil {
		s.recorder.WebhookReceived(ctx, outcome)
	}
	return outcome, err
}

func (s *EventService) handleWebhook(ctx context.Context, body []byte) (string, error) {
	w, err := deposit.ParseWebhook(body)
	if err != nil {
		slog.WarnContext(ctx, "webhook body rejected", "error", err)
		return OutcomeInvalid, nil
	}
	ev, ok, err := w.StatusEvent()
	if err != nil {
		slog.WarnContext(ctx, "webhook data rejected", "event", w.Event, "error", err)
		return OutcomeInvalid, nil
	}
	if !ok {
		slog.DebugContext(ctx, "webhook ignored", "event", w.Event)
		return OutcomeIgnored, nil
	}

	if err := s.Publish(ctx, ev.ID, ev); err != nil {
		return OutcomePublished, err
	}
	return OutcomePublished, nil
}

// Publish routes ev to the subscribers of depositID and drops cached state
// for it.
func (s *EventService) Publish(ctx context.Context, depositID string, ev deposit.StatusEvent) error {
	ctx = logger.WithDepositID(ctx, depositID)
	ctx, span := otel.StartPublishSpan(ctx, depositID, string(ev.Status))
	defer span.End()

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, depositID)
	}
	if err := s.publisher.Publish(ctx, depositID, ev); err != nil {
		return err
	}
	slog.InfoContext(ctx, "status event published", "status", string(ev.Status), "terminal", ev.Terminal())
	return nil
}
