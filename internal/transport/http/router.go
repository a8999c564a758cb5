// Package http assembles the service's HTTP surface.
package http

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	disthandler "tunecast/internal/distribution/handler"
	"tunecast/internal/platform/metrics"
	"tunecast/internal/platform/middleware"
	platformredis "tunecast/internal/platform/redis"
	"tunecast/internal/transport/http/shared"
	"tunecast/internal/webhook"
	dErrors "tunecast/pkg/domain-errors"
)

const requestTimeout = 30 * time.Second

// Deps carries everything the router mounts.
type Deps struct {
	Logger       *slog.Logger
	HTTPMetrics  *metrics.Metrics
	JWTValidator middleware.JWTValidator
	Distribution *disthandler.Handler
	Webhook      *webhook.Handler
	DB           *sql.DB
	Redis        *platformredis.Client
}

// New builds the routing tree. Webhooks bypass JWT auth: platforms
// authenticate with payload signatures instead.
func New(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Latency(deps.HTTPMetrics))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", healthz(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(open chi.Router) {
			open.Use(middleware.ContentTypeJSON)
			deps.Webhook.Register(open)
		})
		api.Group(func(authed chi.Router) {
			authed.Use(middleware.ContentTypeJSON)
			authed.Use(middleware.RequireAuth(deps.JWTValidator, deps.Logger))
			deps.Distribution.Register(authed)
		})
	})
	return r
}

func healthz(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if deps.DB != nil {
			if err := deps.DB.PingContext(ctx); err != nil {
				shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "database unhealthy"))
				return
			}
		}
		if deps.Redis != nil {
			if err := deps.Redis.Health(ctx); err != nil {
				shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "redis unhealthy"))
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
