// Package broadcast defines the port for delivering deposit status events to
// connected subscribers.
package broadcast

import (
	"context"

	"github.com/Strob0t/depositrelay/internal/domain/deposit"
)

// Publisher routes a status event to the subscribers of one deposit.
// Delivery is best effort; implementations never report subscriber failures.
type Publisher interface {
	Publish(ctx context.Context, depositID string, ev deposit.StatusEvent) error
}
