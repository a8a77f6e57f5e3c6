/**
 * @description
 * Webhook and fan-out event shapes for the billing-portal service. The
 * billing provider notifies the portal of customer, subscription and
 * transaction changes; applied events are re-published on the internal
 * event exchange for downstream consumers.
 */
package domain

import (
	"encoding/json"
	"time"
)

// Webhook event types the sync layer understands.
const (
	EventCustomerCreated      = "customer.created"
	EventCustomerUpdated      = "customer.updated"
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
	EventTransactionCompleted = "transaction.completed"
)

// WebhookEvent is the envelope the billing provider posts to the webhook
// endpoint. Data is decoded lazily based on EventType.
type WebhookEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// SubscriptionChangedEvent is published on the billing.events exchange
// after a webhook has been applied to the mirror.
type SubscriptionChangedEvent struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	SubscriptionID string    `json:"subscription_id"`
	CustomerID     string    `json:"customer_id"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}
