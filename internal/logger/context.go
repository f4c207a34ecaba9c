package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey int

const (
	requestIDKey contextKey = iota
	depositIDKey
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithDepositID returns a new context scoped to a deposit.
func WithDepositID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, depositIDKey, id)
}

// DepositID extracts the deposit ID from the context, or "".
func DepositID(ctx context.Context) string {
	id, _ := ctx.Value(depositIDKey).(string)
	return id
}
