/**
 * @description
 * This file contains the HTTP handler functions for the billing-portal
 * service. Handlers parse requests, apply the authenticated-user guard,
 * call into the service layer, and map every error to a structured JSON
 * response; nothing propagates uncaught to the transport.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/brightwave/billing-portal/internal/app"
	"github.com/brightwave/billing-portal/internal/domain"
	"github.com/brightwave/billing-portal/internal/store"
)

const loginPath = "/login"

// Service defines the application operations the handlers dispatch to.
type Service interface {
	PerformSubscriptionAction(ctx context.Context, email, subscriptionID, action string) (json.RawMessage, error)
	ListSubscriptions(ctx context.Context, email string) ([]domain.Subscription, error)
	ListTransactions(ctx context.Context, email string) ([]domain.Transaction, error)
}

// EventApplier applies a verified webhook event to the mirror.
type EventApplier interface {
	ApplyEvent(ctx context.Context, event domain.WebhookEvent) error
}

// Handler holds the collaborators the HTTP handlers need.
type Handler struct {
	service       Service
	syncer        EventApplier
	webhookSecret string
	logger        *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(service Service, syncer EventApplier, webhookSecret string, logger *slog.Logger) *Handler {
	return &Handler{service: service, syncer: syncer, webhookSecret: webhookSecret, logger: logger}
}

// handleSubscriptionAction dispatches pause/cancel/resume for a
// subscription owned by the acting user.
func (h *Handler) handleSubscriptionAction(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		SubscriptionID string `json:"subscription_id"`
		Action         string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	data, err := h.service.PerformSubscriptionAction(r.Context(), user.Email, req.SubscriptionID, req.Action)
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// respondWithActionError maps dispatcher errors onto the response taxonomy.
// Upstream detail stays in the server log; the caller sees a generic 500.
func (h *Handler) respondWithActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrMissingFields), errors.Is(err, app.ErrInvalidAction):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrCustomerNotFound):
		respondWithError(w, http.StatusNotFound, "Customer not found")
	case errors.Is(err, store.ErrSubscriptionNotFound):
		respondWithError(w, http.StatusNotFound, "Subscription not found")
	default:
		h.logger.Error("subscription action failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to perform subscription action")
	}
}

// handleListSubscriptions returns the acting user's mirrored subscriptions.
func (h *Handler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	subs, err := h.service.ListSubscriptions(r.Context(), user.Email)
	if err != nil {
		h.logger.Error("failed to list subscriptions", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load subscriptions")
		return
	}
	respondWithJSON(w, http.StatusOK, subs)
}

// handleListTransactions returns the acting user's mirrored billing history.
func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	txs, err := h.service.ListTransactions(r.Context(), user.Email)
	if err != nil {
		h.logger.Error("failed to list transactions", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}
	respondWithJSON(w, http.StatusOK, txs)
}

var accountPageTemplate = template.Must(template.New("account").Parse(
	`<!doctype html><html><body><h1>Account</h1><p>Signed in as {{.Email}}</p></body></html>`))

// handleAccountPage is the server-rendered account page. Unauthenticated
// visitors are redirected to the login page before any data is fetched.
func (h *Handler) handleAccountPage(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := accountPageTemplate.Execute(w, user); err != nil {
		h.logger.Error("failed to render account page", "error", err)
	}
}

// handleSignOut revokes the session and clears the cookie pair.
func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	client, ok := sessionClientFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := client.SignOut(r.Context()); err != nil {
		// Cookies are expired regardless; the revocation failure only
		// matters server-side.
		h.logger.Error("session revocation failed", "error", err)
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError writes the structured JSON error shape.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
