// Package httptransport exposes the trust pipeline over HTTP. Handlers decode,
// delegate and encode; every decision is made in the pipeline.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"nexus/internal/platform/metrics"
	"nexus/pkg/platform/middleware/request"
	"nexus/pkg/platform/middleware/requesttime"
)

// NewRouter mounts the middleware chain, the /v1 API, /health and /metrics.
func NewRouter(h *Handler, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(request.CallerID)
	r.Use(requesttime.Middleware)
	if logger != nil {
		r.Use(request.AccessLog(logger))
	}

	r.Get("/health", h.HandleHealth)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}
	h.Register(r)
	return r
}
