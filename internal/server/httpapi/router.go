// Package httpapi exposes the services over a JSON REST API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/logging"
	"github.com/dmitrijs2005/zoneboard/internal/server/metrics"
	"github.com/go-chi/chi/v5"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configure NewRouter.
type Options struct {
	Logger  logging.Logger
	Timeout time.Duration
	// Ready gates /healthz; nil means always ready.
	Ready Pinger
}

// NewRouter assembles middleware and routes.
func NewRouter(h *Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		Recover(),
		RequestID(),
		Logging(opts.Logger),
		Metrics(),
	)

	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	})
	r.Get("/healthz", healthz(opts.Ready))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(Timeout(opts.Timeout))

		r.Post("/auth/magic-link", h.RequestMagicLink)
		r.Post("/auth/magic-link/exchange", h.ExchangeMagicLink)
		r.Post("/auth/refresh", h.Refresh)
		r.Post("/auth/logout", h.Logout)
		r.Get("/entitlements/public-key", h.PublicKey)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.Auth))

			r.Get("/me", h.Me)
			r.Get("/entitlements", h.ListEntitlements)
			r.Get("/entitlements/certificate", h.Certificate)
			r.Post("/purchases/google-play/verify", h.VerifyGooglePlayPurchase)
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.PutSettings)
		})
	})

	return r
}

func healthz(ready Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready.PingContext(ctx); err != nil {
				loggerFrom(r).Warn(r.Context(), "readiness check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, okResponse{OK: false})
				return
			}
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}
