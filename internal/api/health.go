package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is anything the health endpoint can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck names one dependency probed by the health endpoint.
type HealthCheck struct {
	Name   string
	Pinger Pinger
}

// HealthHandlerFunc returns an http.HandlerFunc that pings every check.
// Returns 200 if all are ok, 503 otherwise.
func HealthHandlerFunc(checks []HealthCheck, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}

		for _, c := range checks {
			body[c.Name] = "ok"
			if err := c.Pinger.Ping(ctx); err != nil {
				log.Error("health check: ping failed", "check", c.Name, "err", err)
				body[c.Name] = "error"
				status = http.StatusServiceUnavailable
			}
		}

		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		writeJSON(w, status, body)
	}
}
