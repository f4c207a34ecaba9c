package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "depositrelay"

// Metrics holds the relay's metric instruments. It satisfies relay.Recorder.
type Metrics struct {
	Actors          metric.Int64UpDownCounter
	Subscribers     metric.Int64UpDownCounter
	SubscribersGone metric.Int64Counter
	Broadcasts      metric.Int64Counter
	Frames          metric.Int64Counter
	KeepAlives      metric.Int64Counter
	Webhooks        metric.Int64Counter
}

// NewMetrics creates all metric instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Actors, err = meter.Int64UpDownCounter("depositrelay.actors",
		metric.WithDescription("Live broadcast actors"))
	if err != nil {
		return nil, err
	}

	m.Subscribers, err = meter.Int64UpDownCounter("depositrelay.subscribers",
		metric.WithDescription("Connected subscribers"))
	if err != nil {
		return nil, err
	}

	m.SubscribersGone, err = meter.Int64Counter("depositrelay.subscribers.detached",
		metric.WithDescription("Subscribers removed, by reason"))
	if err != nil {
		return nil, err
	}

	m.Broadcasts, err = meter.Int64Counter("depositrelay.broadcasts",
		metric.WithDescription("Status events broadcast"))
	if err != nil {
		return nil, err
	}

	m.Frames, err = meter.Int64Counter("depositrelay.frames.delivered",
		metric.WithDescription("Event frames written to subscribers"))
	if err != nil {
		return nil, err
	}

	m.KeepAlives, err = meter.Int64Counter("depositrelay.keepalives",
		metric.WithDescription("Keep-alive frames written"))
	if err != nil {
		return nil, err
	}

	m.Webhooks, err = meter.Int64Counter("depositrelay.webhooks",
		metric.WithDescription("Authenticated webhooks, by outcome"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) ActorStarted() { m.Actors.Add(context.Background(), 1) }
func (m *Metrics) ActorStopped() { m.Actors.Add(context.Background(), -1) }

func (m *Metrics) SubscriberAttached() { m.Subscribers.Add(context.Background(), 1) }

func (m *Metrics) SubscriberDetached(pruned bool) {
	ctx := context.Background()
	m.Subscribers.Add(ctx, -1)
	reason := "closed"
	if pruned {
		reason = "pruned"
	}
	m.SubscribersGone.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) EventBroadcast(terminal bool, delivered int) {
	ctx := context.Background()
	m.Broadcasts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("terminal", terminal)))
	m.Frames.Add(ctx, int64(delivered))
}

func (m *Metrics) KeepAliveSent(n int) { m.KeepAlives.Add(context.Background(), int64(n)) }

// WebhookReceived counts an authenticated webhook. outcome is one of
// "published", "ignored" or "invalid".
func (m *Metrics) WebhookReceived(ctx context.Context, outcome string) {
	m.Webhooks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
