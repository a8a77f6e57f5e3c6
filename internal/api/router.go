/**
 * @description
 * This file sets up the HTTP router for the billing-portal service using
 * the go-chi/chi router. It applies the standard middleware stack plus the
 * session refresh gate, and maps routes to their handlers.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the billing-portal
// routes. The refresh gate decides per-request whether its prefix set
// applies, so it is mounted globally.
func NewRouter(h *Handler, refreshGate func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))
	r.Use(refreshGate)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Billing portal is healthy"))
	})

	// Billing provider webhook; authenticated by signature, not session.
	r.Post("/webhooks/billing", h.handleBillingWebhook)

	// Session-guarded API surface.
	r.Route("/api", func(r chi.Router) {
		r.Post("/subscriptions/action", h.handleSubscriptionAction)
		r.Get("/subscriptions", h.handleListSubscriptions)
		r.Get("/transactions", h.handleListTransactions)
	})

	// Server-rendered account page and sign-out.
	r.Get("/account", h.handleAccountPage)
	r.Post("/account/signout", h.handleSignOut)

	return r
}
