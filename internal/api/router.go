package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultRateLimit is the per-IP request budget per minute.
const DefaultRateLimit = 60

// NewRouter builds and returns the Chi router with all routes configured.
// Health and metrics are unauthenticated; everything else requires the API key.
// Rate limiting is applied globally per IP.
func NewRouter(handlers *Handlers, apiKey string, ratePerMinute int, checks []HealthCheck, log *slog.Logger) *chi.Mux {
	if ratePerMinute <= 0 {
		ratePerMinute = DefaultRateLimit
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httprate.LimitByIP(ratePerMinute, time.Minute))

	r.Get("/api/v1/health", HealthHandlerFunc(checks, log))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(apiKey))

		r.Get("/api/v1/scores/{country}", handlers.GetScore)
		r.Post("/api/v1/scores/{country}", handlers.CreateScore)

		r.Get("/api/v1/records", handlers.ListRecords)
		r.Get("/api/v1/records/{id}", handlers.GetRecord)
		r.Get("/api/v1/records/risk/{category}", handlers.ListRecordsByRisk)

		r.Get("/api/v1/presence", handlers.GetPresence)
		r.Get("/api/v1/presence/{destination}/total", handlers.GetPresenceTotal)
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
