// Package messagequeue defines the message bus port used to fan deposit
// events out across relay instances.
package messagequeue

import "context"

// Handler processes a message received from the bus.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
// Delivery is at most once; there is no persistence.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject
	// (wildcards allowed). The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the connection immediately.
	Close() error

	// IsConnected reports whether the bus is currently connected.
	IsConnected() bool
}

// SubjectDepositEvents carries every deposit status event. The deposit id
// travels in the message body since ids are not valid subject tokens in general.
const SubjectDepositEvents = "deposits.events"
