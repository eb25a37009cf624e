package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rideline/rideline/internal/observability"
	"github.com/rideline/rideline/internal/ratelimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *ratelimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyKeyMiddleware)

	r.Post("/v1/holds", h.CreateHold)
	r.Delete("/v1/holds/{ref}", h.ReleaseHold)
	r.Post("/v1/holds/{ref}/extend", h.ExtendHold)
	r.Post("/v1/seats/select", h.SelectSeats)
	r.Post("/v1/bookings", h.CreateBooking)
	r.Get("/v1/bookings/{id}", h.GetBooking)
	r.Post("/v1/trips/materialize", h.MaterializeTrip)
	r.Post("/v1/trips/{id}/inventory", h.BuildInventory)
	r.Get("/v1/trips/{id}/seatmap", h.SeatMap)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
