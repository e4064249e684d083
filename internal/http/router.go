package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/nft-ticket-protocol/internal/idempotency"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"github.com/robertarktes/nft-ticket-protocol/internal/rateLimit"
)

// SetupRouter wires the API. rl and idemp may be nil when Redis is not configured.
func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)
	r.Use(SignerMiddleware)
	if rl != nil {
		r.Use(RateLimitMiddleware(rl))
	}
	if idemp != nil {
		r.Use(IdempotencyMiddleware(idemp, logger))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", h.CreateEvent)
		r.Get("/events", h.ListEvents)
		r.Get("/events/{id}", h.GetEvent)
		r.Post("/events/{id}/mint", h.MintTickets)

		r.Get("/tickets", h.ListTickets)
		r.Get("/tickets/{policy}/{asset}", h.GetTicket)
		r.Get("/tickets/{policy}/{asset}/history", h.TicketHistory)
		r.Post("/tickets/{policy}/{asset}/actions", h.SubmitAction)

		r.Get("/marketplace", h.Marketplace)
		r.Get("/quote", h.Quote)
		r.Get("/auth/{address}", h.Auth)

		r.Get("/healthz", h.Healthz)
		r.Get("/readyz", h.Readyz)
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
