package relay

import (
	"context"
	"errors"
)

// ErrActorClosed is returned when an operation reaches an actor that has been
// retired by a terminal event, eviction or shutdown.
var ErrActorClosed = errors.New("relay: actor closed")

// ErrRegistryClosed is returned by Subscribe and Publish once the registry has
// been closed.
var ErrRegistryClosed = errors.New("relay: registry closed")

// Sink is one subscriber's output stream.
//
// Send and Ping may be called from the actor goroutine while the transport
// handler is blocked elsewhere; implementations must make them safe to call
// concurrently with Close. Writes after Close must fail.
type Sink interface {
	// Send writes one event frame.
	Send(ctx context.Context, payload []byte) error
	// Ping writes a keep-alive frame carrying no event.
	Ping(ctx context.Context) error
	// Close ends the stream cleanly. It must be idempotent.
	Close() error
}

// Recorder receives actor lifecycle observations for metrics.
type Recorder interface {
	ActorStarted()
	ActorStopped()
	SubscriberAttached()
	SubscriberDetached(pruned bool)
	EventBroadcast(terminal bool, delivered int)
	KeepAliveSent(n int)
}

type nopRecorder struct{}

func (nopRecorder) ActorStarted()            {}
func (nopRecorder) ActorStopped()            {}
func (nopRecorder) SubscriberAttached()      {}
func (nopRecorder) SubscriberDetached(bool)  {}
func (nopRecorder) EventBroadcast(bool, int) {}
func (nopRecorder) KeepAliveSent(int)        {}
