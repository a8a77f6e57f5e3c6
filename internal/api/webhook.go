/**
 * @description
 * Webhook endpoint for the billing provider. The provider signs each
 * delivery with an HMAC-SHA256 of the raw body; unverifiable deliveries are
 * rejected before any decoding happens. Verified events are applied to the
 * mirrored store by the sync layer.
 */
package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/brightwave/billing-portal/internal/domain"
)

// SignatureHeader carries the hex-encoded HMAC of the delivery body.
const SignatureHeader = "Billing-Signature"

const maxWebhookBodyBytes = 1 << 20

// handleBillingWebhook verifies and applies a provider webhook delivery.
func (h *Handler) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if !verifySignature(body, r.Header.Get(SignatureHeader), h.webhookSecret) {
		h.logger.Warn("rejected webhook with bad signature", "remote_addr", r.RemoteAddr)
		respondWithError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid event payload")
		return
	}
	if event.EventID == "" || event.EventType == "" {
		respondWithError(w, http.StatusBadRequest, "Event id and type are required")
		return
	}

	if err := h.syncer.ApplyEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to apply webhook event", "event_id", event.EventID, "event_type", event.EventType, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to process event")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// verifySignature checks the delivery HMAC in constant time.
func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ComputeSignature produces the signature for a webhook body. Exported for
// tests and local delivery tooling.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
