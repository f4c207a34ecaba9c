// Package deposit defines domain types for payment-provider deposit events.
package deposit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/depositrelay/internal/domain"
)

// Status is the provider-reported state of a deposit.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusError   Status = "Error"
)

// Terminal reports whether no further events are expected after s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// StatusEvent is a status change for one deposit. Only the id and status are
// interpreted; the rest of the object is carried verbatim.
type StatusEvent struct {
	ID      string
	Status  Status
	payload []byte
}

// ParseStatusEvent reads a status event from raw JSON. Any valid JSON value is
// accepted; id and status are extracted when data is an object.
func ParseStatusEvent(data []byte) (StatusEvent, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return StatusEvent{}, fmt.Errorf("%w: status event is not valid JSON", domain.ErrValidation)
	}

	ev := StatusEvent{payload: buf.Bytes()}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(ev.payload, &fields); err != nil {
		return ev, nil
	}
	ev.ID = scalarString(fields["id"])
	ev.Status = Status(scalarString(fields["status"]))
	return ev, nil
}

// NewStatusEvent builds an event carrying only an id and a status.
func NewStatusEvent(id string, status Status) StatusEvent {
	payload, _ := json.Marshal(struct {
		ID     string `json:"id"`
		Status Status `json:"status"`
	}{id, status})
	return StatusEvent{ID: id, Status: status, payload: payload}
}

// Terminal reports whether the event closes the deposit's channel.
func (e StatusEvent) Terminal() bool {
	return e.Status.Terminal()
}

// Payload returns the compact JSON form of the event as received.
func (e StatusEvent) Payload() []byte {
	return e.payload
}

// MarshalJSON emits the event exactly as it was received.
func (e StatusEvent) MarshalJSON() ([]byte, error) {
	if len(e.payload) == 0 {
		return []byte("null"), nil
	}
	return e.payload, nil
}

// scalarString renders a JSON string or number as a Go string. Other kinds
// yield "".
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// EventDeposit is the webhook event name that carries deposit status changes.
const EventDeposit = "deposit"

// Webhook is the envelope posted by the payment provider.
type Webhook struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ParseWebhook decodes a webhook body.
func ParseWebhook(body []byte) (Webhook, error) {
	var w Webhook
	if err := json.Unmarshal(body, &w); err != nil {
		return Webhook{}, fmt.Errorf("%w: webhook body: %v", domain.ErrValidation, err)
	}
	return w, nil
}

// StatusEvent extracts the deposit status event. ok is false when the
// webhook is not a deposit event or carries no deposit id.
func (w Webhook) StatusEvent() (ev StatusEvent, ok bool, err error) {
	if w.Event != EventDeposit || len(w.Data) == 0 {
		return StatusEvent{}, false, nil
	}
	ev, err = ParseStatusEvent(w.Data)
	if err != nil {
		return StatusEvent{}, false, err
	}
	if strings.TrimSpace(ev.ID) == "" {
		return StatusEvent{}, false, nil
	}
	return ev, true, nil
}
