package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterOptions bounds request handling.
type RouterOptions struct {
	// RequestTimeout cancels a request's context after the given duration.
	// Zero disables the timeout.
	RequestTimeout time.Duration

	// MaxBodyBytes limits request bodies. Zero disables the limit.
	MaxBodyBytes int64
}

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	if opts.MaxBodyBytes > 0 {
		r.Use(middleware.RequestSize(opts.MaxBodyBytes))
	}

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	r.Get("/", h.Home)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sync", h.Sync)
		r.Post("/refresh-cache", h.RefreshCache)
		r.Get("/status", h.Status)

		// Listings: clients, master, products
		r.Get("/{entity}", h.List)
		r.Get("/{entity}/all", h.ListAll)
	})

	return r
}
