package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Strob0t/depositrelay/internal/domain/deposit"
	"github.com/Strob0t/depositrelay/internal/port/messagequeue"
)

// LocalRelay is the in-process side of event routing.
type LocalRelay interface {
	// Publish routes ev to the actor for id, creating it if needed.
	Publish(ctx context.Context, id string, ev deposit.StatusEvent) error
	// Deliver routes ev only to an actor that already exists.
	Deliver(ctx context.Context, id string, ev deposit.StatusEvent) error
}

// fanoutEnvelope is the bus message for one status event.
type fanoutEnvelope struct {
	Origin    string          `json:"origin"`
	DepositID string          `json:"deposit_id"`
	Event     json.RawMessage `json:"event"`
}

// Fanout publishes status events locally and to every other relay instance
// through the message bus. Remote instances only deliver to deposits that
// already have subscribers there.
type Fanout struct {
	local  LocalRelay
	queue  messagequeue.Queue
	origin string
}

// NewFanout creates a Fanout with a random instance id.
func NewFanout(local LocalRelay, queue messagequeue.Queue) *Fanout {
	return &Fanout{local: local, queue: queue, origin: uuid.NewString()}
}

// Publish delivers ev to local subscribers, then forwards it to the bus.
// A bus failure is logged; local delivery has already happened.
func (f *Fanout) Publish(ctx context.Context, depositID string, ev deposit.StatusEvent) error {
	if err := f.local.Publish(ctx, depositID, ev); err != nil {
		return err
	}

	data, err := json.Marshal(fanoutEnvelope{Origin: f.origin, DepositID: depositID, Event: ev.Payload()})
	if err != nil {
		return fmt.Errorf("marshal fanout envelope: %w", err)
	}
	if err := f.queue.Publish(ctx, messagequeue.SubjectDepositEvents, data); err != nil {
		slog.WarnContext(ctx, "fanout publish failed", "deposit_id", depositID, "error", err)
	}
	return nil
}

// Start consumes events published by other instances. The returned function
// stops consumption.
func (f *Fanout) Start(ctx context.Context) (func(), error) {
	return f.queue.Subscribe(ctx, messagequeue.SubjectDepositEvents, f.handle)
}

func (f *Fanout) handle(ctx context.Context, _ string, data []byte) error {
	var env fanoutEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode fanout envelope: %w", err)
	}
	if env.Origin == f.origin || env.DepositID == "" {
		return nil
	}
	ev, err := deposit.ParseStatusEvent(env.Event)
	if err != nil {
		return err
	}
	return f.local.Deliver(ctx, env.DepositID, ev)
}
