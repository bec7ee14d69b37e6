package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mailflowhq/mailflow/internal/public_api/middleware"
)

// NewRouter builds the full API surface under /api, plus /health and
// /metrics at the root.
func NewRouter(
	auth *AuthHandler,
	email *EmailHandler,
	templates *TemplateHandler,
	analytics *AnalyticsHandler,
	ws *WSHandler,
	validator middleware.TokenValidator,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(chimiddleware.Timeout(60 * time.Second))

		auth.RegisterPublicRoutes(api)

		api.Group(func(protected chi.Router) {
			protected.Use(middleware.AuthMiddleware(validator, logger))
			auth.RegisterProtectedRoutes(protected)
			email.RegisterRoutes(protected)
			templates.RegisterRoutes(protected)
			analytics.RegisterRoutes(protected)
		})

		// The WebSocket endpoint does its own token check so browsers
		// can pass the token in the query string.
		ws.RegisterRoutes(api)
	})

	return r
}
