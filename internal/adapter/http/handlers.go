package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Strob0t/depositrelay/internal/adapter/sse"
	"github.com/Strob0t/depositrelay/internal/adapter/ws"
	"github.com/Strob0t/depositrelay/internal/domain/deposit"
	"github.com/Strob0t/depositrelay/internal/logger"
	"github.com/Strob0t/depositrelay/internal/port/messagequeue"
	"github.com/Strob0t/depositrelay/internal/relay"
	"github.com/Strob0t/depositrelay/internal/service"
)

// Handlers holds the dependencies of the HTTP handlers.
type Handlers struct {
	Relay  *relay.Registry
	Events *service.EventService
	// Deposits is nil when no provider is configured.
	Deposits *service.DepositService
	// Queue is nil when cross-instance fan-out is disabled.
	Queue      messagequeue.Queue
	CORSOrigin string
}

// Connect streams status events for one deposit as Server-Sent Events. The
// response ends when the deposit reaches a terminal status or the client
// goes away.
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	id, ok := depositParam(w, r)
	if !ok {
		return
	}
	ctx := logger.WithDepositID(r.Context(), id)

	stream, err := sse.Open(w)
	if err != nil {
		slog.ErrorContext(ctx, "sse open failed", "error", err)
		return
	}
	h.serve(ctx, id, stream, stream.Done(), "sse")
}

// WS is the WebSocket variant of Connect.
func (h *Handlers) WS(w http.ResponseWriter, r *http.Request) {
	id, ok := depositParam(w, r)
	if !ok {
		return
	}
	ctx := logger.WithDepositID(r.Context(), id)

	sink, connCtx, err := ws.Accept(w, r, h.CORSOrigin)
	if err != nil {
		slog.WarnContext(ctx, "websocket accept failed", "error", err)
		return
	}
	h.serve(logger.WithDepositID(connCtx, id), id, sink, sink.Done(), "ws")
	sink.Finish()
}

// serve attaches sink to the deposit's actor and blocks until either side
// ends the stream.
func (h *Handlers) serve(ctx context.Context, id string, sink relay.Sink, done <-chan struct{}, transport string) {
	sub, err := h.Relay.Subscribe(ctx, id, sink)
	if err != nil {
		slog.WarnContext(ctx, "subscribe failed", "transport", transport, "error", err)
		_ = sink.Close()
		return
	}
	slog.InfoContext(ctx, "subscriber connected", "transport", transport)

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "subscriber disconnected", "transport", transport)
	case <-done:
		slog.InfoContext(ctx, "stream closed by relay", "transport", transport)
	}
	sub.Cancel()
	_ = sink.Close()
}

// Webhook accepts provider status notifications. Once the signature has been
// verified the response is always 200, whatever the body holds.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := readWebhookBody(w, r)
	if err != nil {
		slog.WarnContext(r.Context(), "webhook body unreadable", "error", err)
	} else {
		outcome, err := h.Events.HandleWebhook(r.Context(), body)
		if err != nil {
			slog.WarnContext(r.Context(), "webhook publish interrupted", "outcome", outcome, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// InternalBroadcast publishes a raw status event to the actor addressed in
// the path.
func (h *Handlers) InternalBroadcast(w http.ResponseWriter, r *http.Request) {
	id, ok := depositParam(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	ev, err := deposit.ParseStatusEvent(body)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.Events.Publish(r.Context(), id, ev); err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// CreateDeposit proxies a deposit creation to the provider.
func (h *Handlers) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, func(ctx context.Context, body []byte) ([]byte, error) {
		return h.Deposits.Create(ctx, body)
	})
}

// DepositStatus proxies a deposit status lookup to the provider.
func (h *Handlers) DepositStatus(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, func(ctx context.Context, body []byte) ([]byte, error) {
		return h.Deposits.Status(ctx, body)
	})
}

func (h *Handlers) proxy(w http.ResponseWriter, r *http.Request, call func(context.Context, []byte) ([]byte, error)) {
	if h.Deposits == nil {
		writeError(w, http.StatusServiceUnavailable, "payment provider not configured")
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	resp, err := call(r.Context(), body)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeRawJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status string `json:"status"`
	Actors int    `json:"actors"`
	NATS   string `json:"nats"`
}

// Health reports liveness, the live actor count and bus connectivity.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Actors: h.Relay.Len(), NATS: "disabled"}
	if h.Queue != nil {
		resp.NATS = "connected"
		if !h.Queue.IsConnected() {
			resp.NATS = "disconnected"
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
