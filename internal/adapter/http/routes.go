package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/depositrelay/internal/config"
	"github.com/Strob0t/depositrelay/internal/middleware"
)

// MountRoutes registers all relay routes on the given chi router. limiter
// guards the provider proxy routes and may be nil; metrics is served on
// /metrics when non-nil.
func MountRoutes(r chi.Router, h *Handlers, webhookCfg config.Webhook, limiter *middleware.RateLimiter, metrics http.Handler) {
	r.Get("/health", h.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	// Subscriber streams
	r.Get("/api/events/{depositId}/connect", h.Connect)
	r.Get("/api/events/{depositId}/ws", h.WS)

	signed := middleware.WebhookDigest(webhookCfg.Secret, webhookCfg.Header)

	// Provider webhook
	r.With(signed).Post("/webhook", h.Webhook)

	// Direct actor addressing, same credentials as the webhook
	r.Route("/internal/actors/{depositId}", func(r chi.Router) {
		r.Use(signed)
		r.Post("/broadcast", h.InternalBroadcast)
		r.Get("/connect", h.Connect)
	})

	// Provider proxy
	r.Route("/api/deposit", func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Handler)
		}
		r.Post("/create", h.CreateDeposit)
		r.Post("/status", h.DepositStatus)
	})
}
