// Package api exposes the monitor over HTTP.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the collaborators of the router.
type Config struct {
	Service Service
	// Registry is served at /metrics when set.
	Registry       *prometheus.Registry
	Logger         *slog.Logger
	AllowedOrigins []string
}

// NewRouter creates the HTTP router.
func NewRouter(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "api"))
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(recovery(logger))
	r.Use(requestID)
	r.Use(logging(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	h := &handler{svc: cfg.Service, logger: logger}
	r.Get("/health", h.health)
	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/scan", func(r chi.Router) {
			r.Post("/", h.startScan)
			r.Get("/status", h.scanStatus)
		})
		r.Route("/sellers", func(r chi.Router) {
			r.Get("/", h.listSellers)
			r.Post("/", h.addSeller)
			r.Delete("/{username}", h.removeSeller)
			r.Get("/{username}/matches", h.sellerMatches)
		})
		r.Route("/matches", func(r chi.Router) {
			r.Get("/", h.listMatches)
			r.Post("/seen", h.markAllSeen)
			r.Post("/notified", h.markNotified)
			r.Post("/prune", h.pruneSold)
			r.Post("/{id}/seen", h.markSeen)
		})
		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.putSettings)
	})

	return r
}
