package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/cartstore/pkg/health"
	"github.com/utafrali/cartstore/pkg/middleware"
)

const serviceName = "cart-store"

// Options tunes the router.
type Options struct {
	// AllowedOrigin is the storefront origin allowed to call the API from a
	// browser. Empty disables CORS headers.
	AllowedOrigin string

	// PprofCIDRs enables /debug/pprof for clients in these ranges.
	PprofCIDRs []string
}

// NewRouter creates a chi router with all cart routes registered.
func NewRouter(
	cartHandler *CartHandler,
	streamHandler *StreamHandler,
	healthHandler *health.Handler,
	opts Options,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(CORS(opts.AllowedOrigin))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if len(opts.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, opts.PprofCIDRs, logger)
	}

	r.Route("/api/v1/cart", func(r chi.Router) {
		// The event stream is long-lived and must not be cut by the timeout
		// or buffered by compression.
		r.Get("/stream", streamHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Use(chimw.Timeout(30 * time.Second))
			r.Use(ContentTypeJSON)

			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)

			r.Post("/items", cartHandler.AddProduct)
			r.Put("/items/{productId}", cartHandler.UpdateProductAmount)
			r.Delete("/items/{productId}", cartHandler.RemoveProduct)
		})
	})

	return r
}
