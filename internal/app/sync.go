/**
 * @description
 * Webhook synchronization for the mirrored store. The billing provider is
 * the source of truth; its webhook events are the only write path into the
 * customers/subscriptions/transactions mirror (besides the reconciler).
 * Applied subscription events are re-published on the internal event
 * exchange for downstream consumers.
 */
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brightwave/billing-portal/internal/domain"
)

// Billing event exchange and routing keys for the fan-out.
const (
	BillingEventsExchange         = "billing.events"
	SubscriptionChangedRoutingKey = "billing.subscription.changed"
)

// SyncRepository defines the mirror writes the syncer needs.
type SyncRepository interface {
	UpsertCustomer(ctx context.Context, customer *domain.Customer) error
	UpsertSubscription(ctx context.Context, sub *domain.Subscription) error
	UpsertTransaction(ctx context.Context, tx *domain.Transaction) error
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Syncer applies billing-provider webhook events to the mirrored store.
type Syncer struct {
	repo      SyncRepository
	publisher Publisher
	logger    *slog.Logger
}

// NewSyncer creates a new webhook syncer.
func NewSyncer(repo SyncRepository, publisher Publisher, logger *slog.Logger) *Syncer {
	return &Syncer{repo: repo, publisher: publisher, logger: logger}
}

// webhookCustomer is the provider's customer payload shape.
type webhookCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// webhookSubscription is the provider's subscription payload shape.
type webhookSubscription struct {
	ID                   string          `json:"id"`
	CustomerID           string          `json:"customer_id"`
	Status               string          `json:"status"`
	PriceID              string          `json:"price_id"`
	ProductID            string          `json:"product_id"`
	ScheduledChange      json.RawMessage `json:"scheduled_change"`
	StartedAt            *time.Time      `json:"started_at"`
	FirstBilledAt        *time.Time      `json:"first_billed_at"`
	PausedAt             *time.Time      `json:"paused_at"`
	CanceledAt           *time.Time      `json:"canceled_at"`
	CurrentBillingPeriod *struct {
		StartsAt *time.Time `json:"starts_at"`
		EndsAt   *time.Time `json:"ends_at"`
	} `json:"current_billing_period"`
}

// webhookTransaction is the provider's transaction payload shape.
type webhookTransaction struct {
	ID             string     `json:"id"`
	SubscriptionID string     `json:"subscription_id"`
	CustomerID     string     `json:"customer_id"`
	Status         string     `json:"status"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	BilledAt       *time.Time `json:"billed_at"`
}

// ApplyEvent upserts the event's entity into the mirror. Unknown event
// types are logged and skipped so a provider rollout of new events never
// breaks the endpoint.
func (s *Syncer) ApplyEvent(ctx context.Context, event domain.WebhookEvent) error {
	switch event.EventType {
	case domain.EventCustomerCreated, domain.EventCustomerUpdated:
		return s.applyCustomer(ctx, event)
	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionCanceled:
		return s.applySubscription(ctx, event)
	case domain.EventTransactionCompleted:
		return s.applyTransaction(ctx, event)
	default:
		s.logger.Info("ignoring unrecognized webhook event", "event_type", event.EventType, "event_id", event.EventID)
		return nil
	}
}

func (s *Syncer) applyCustomer(ctx context.Context, event domain.WebhookEvent) error {
	var payload webhookCustomer
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("failed to decode customer payload: %w", err)
	}
	if payload.ID == "" {
		return fmt.Errorf("customer event %s has no customer id", event.EventID)
	}

	// Emails are stored lowercased so the exact-match lookup and the
	// session identity agree on casing.
	customer := &domain.Customer{
		CustomerID: payload.ID,
		Email:      strings.ToLower(strings.TrimSpace(payload.Email)),
	}
	if err := s.repo.UpsertCustomer(ctx, customer); err != nil {
		return err
	}
	s.logger.Info("mirrored customer", "customer_id", customer.CustomerID, "event_type", event.EventType)
	return nil
}

func (s *Syncer) applySubscription(ctx context.Context, event domain.WebhookEvent) error {
	var payload webhookSubscription
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("failed to decode subscription payload: %w", err)
	}
	if payload.ID == "" || payload.CustomerID == "" {
		return fmt.Errorf("subscription event %s is missing identifiers", event.EventID)
	}

	sub := &domain.Subscription{
		SubscriptionID: payload.ID,
		CustomerID:     payload.CustomerID,
		Status:         payload.Status,
		PriceID:        payload.PriceID,
		ProductID:      payload.ProductID,
		StartedAt:      payload.StartedAt,
		FirstBilledAt:  payload.FirstBilledAt,
		PausedAt:       payload.PausedAt,
		CanceledAt:     payload.CanceledAt,
	}
	if len(payload.ScheduledChange) > 0 && string(payload.ScheduledChange) != "null" {
		change := string(payload.ScheduledChange)
		sub.ScheduledChange = &change
	}
	if payload.CurrentBillingPeriod != nil {
		sub.CurrentPeriodStart = payload.CurrentBillingPeriod.StartsAt
		sub.CurrentPeriodEnd = payload.CurrentBillingPeriod.EndsAt
	}

	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return err
	}
	s.logger.Info("mirrored subscription", "subscription_id", sub.SubscriptionID, "status", sub.Status, "event_type", event.EventType)

	s.publishSubscriptionChanged(ctx, event, sub)
	return nil
}

func (s *Syncer) applyTransaction(ctx context.Context, event domain.WebhookEvent) error {
	var payload webhookTransaction
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("failed to decode transaction payload: %w", err)
	}
	if payload.ID == "" {
		return fmt.Errorf("transaction event %s has no transaction id", event.EventID)
	}

	tx := &domain.Transaction{
		TransactionID:  payload.ID,
		SubscriptionID: payload.SubscriptionID,
		CustomerID:     payload.CustomerID,
		Status:         payload.Status,
		Amount:         payload.Amount,
		Currency:       payload.Currency,
		BilledAt:       payload.BilledAt,
	}
	if err := s.repo.UpsertTransaction(ctx, tx); err != nil {
		return err
	}
	s.logger.Info("mirrored transaction", "transaction_id", tx.TransactionID, "event_type", event.EventType)
	return nil
}

// publishSubscriptionChanged fans the applied event out to the exchange.
// Publish failures are logged, not propagated: the mirror write already
// succeeded and the webhook must be acknowledged.
func (s *Syncer) publishSubscriptionChanged(ctx context.Context, event domain.WebhookEvent, sub *domain.Subscription) {
	if s.publisher == nil {
		return
	}
	out := domain.SubscriptionChangedEvent{
		EventID:        event.EventID,
		EventType:      event.EventType,
		SubscriptionID: sub.SubscriptionID,
		CustomerID:     sub.CustomerID,
		Status:         sub.Status,
		OccurredAt:     event.OccurredAt,
	}
	if err := s.publisher.Publish(ctx, BillingEventsExchange, SubscriptionChangedRoutingKey, out); err != nil {
		s.logger.Error("failed to publish subscription change event", "event_id", event.EventID, "error", err)
	}
}
