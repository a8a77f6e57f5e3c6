package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brightwave/billing-portal/internal/domain"
)

type syncRepoStub struct {
	customers     []domain.Customer
	subscriptions []domain.Subscription
	transactions  []domain.Transaction
}

func (s *syncRepoStub) UpsertCustomer(ctx context.Context, customer *domain.Customer) error {
	s.customers = append(s.customers, *customer)
	return nil
}

func (s *syncRepoStub) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	s.subscriptions = append(s.subscriptions, *sub)
	return nil
}

func (s *syncRepoStub) UpsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.transactions = append(s.transactions, *tx)
	return nil
}

type publisherStub struct {
	exchanges   []string
	routingKeys []string
	bodies      []interface{}
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.exchanges = append(p.exchanges, exchange)
	p.routingKeys = append(p.routingKeys, routingKey)
	p.bodies = append(p.bodies, body)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApplyEvent_SubscriptionUpdatedMirrorsAndPublishes(t *testing.T) {
	repo := &syncRepoStub{}
	pub := &publisherStub{}
	syncer := NewSyncer(repo, pub, testLogger())

	data, _ := json.Marshal(map[string]interface{}{
		"id":               "sub_1",
		"customer_id":      "ctm_1",
		"status":           "paused",
		"price_id":         "pri_1",
		"product_id":       "pro_1",
		"scheduled_change": map[string]string{"action": "cancel", "effective_at": "2026-10-01T00:00:00Z"},
		"current_billing_period": map[string]string{
			"starts_at": "2026-09-01T00:00:00Z",
			"ends_at":   "2026-10-01T00:00:00Z",
		},
	})
	event := domain.WebhookEvent{
		EventID:    "evt_1",
		EventType:  domain.EventSubscriptionUpdated,
		OccurredAt: time.Now(),
		Data:       data,
	}

	if err := syncer.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.subscriptions) != 1 {
		t.Fatalf("expected one subscription upsert, got %d", len(repo.subscriptions))
	}

	sub := repo.subscriptions[0]
	if sub.SubscriptionID != "sub_1" || sub.CustomerID != "ctm_1" || sub.Status != "paused" {
		t.Fatalf("unexpected mirrored subscription: %+v", sub)
	}
	if sub.ScheduledChange == nil {
		t.Fatal("expected scheduled change to be mirrored")
	}
	if sub.CurrentPeriodEnd == nil {
		t.Fatal("expected current period end to be mirrored")
	}

	if len(pub.routingKeys) != 1 || pub.routingKeys[0] != SubscriptionChangedRoutingKey {
		t.Fatalf("expected one fan-out on %s, got %v", SubscriptionChangedRoutingKey, pub.routingKeys)
	}
	if pub.exchanges[0] != BillingEventsExchange {
		t.Fatalf("unexpected exchange: %s", pub.exchanges[0])
	}
	out, ok := pub.bodies[0].(domain.SubscriptionChangedEvent)
	if !ok || out.SubscriptionID != "sub_1" || out.Status != "paused" {
		t.Fatalf("unexpected published event: %+v", pub.bodies[0])
	}
}

func TestApplyEvent_CustomerEmailIsStoredLowercased(t *testing.T) {
	repo := &syncRepoStub{}
	syncer := NewSyncer(repo, &publisherStub{}, testLogger())

	data, _ := json.Marshal(map[string]string{"id": "ctm_1", "email": " Alice@Example.COM "})
	event := domain.WebhookEvent{EventID: "evt_2", EventType: domain.EventCustomerCreated, Data: data}

	if err := syncer.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.customers) != 1 {
		t.Fatalf("expected one customer upsert, got %d", len(repo.customers))
	}
	if repo.customers[0].Email != "alice@example.com" {
		t.Fatalf("expected lowercased email, got %q", repo.customers[0].Email)
	}
}

func TestApplyEvent_TransactionCompletedIsMirrored(t *testing.T) {
	repo := &syncRepoStub{}
	syncer := NewSyncer(repo, &publisherStub{}, testLogger())

	data, _ := json.Marshal(map[string]interface{}{
		"id":              "txn_1",
		"subscription_id": "sub_1",
		"customer_id":     "ctm_1",
		"status":          "completed",
		"amount":          1999,
		"currency":        "USD",
	})
	event := domain.WebhookEvent{EventID: "evt_3", EventType: domain.EventTransactionCompleted, Data: data}

	if err := syncer.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.transactions) != 1 {
		t.Fatalf("expected one transaction upsert, got %d", len(repo.transactions))
	}
	tx := repo.transactions[0]
	if tx.Amount != 1999 || tx.Currency != "USD" {
		t.Fatalf("unexpected mirrored transaction: %+v", tx)
	}
}

func TestApplyEvent_UnknownTypeIsIgnored(t *testing.T) {
	repo := &syncRepoStub{}
	pub := &publisherStub{}
	syncer := NewSyncer(repo, pub, testLogger())

	event := domain.WebhookEvent{EventID: "evt_4", EventType: "invoice.finalized", Data: json.RawMessage(`{}`)}
	if err := syncer.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("expected unknown event types to be skipped, got %v", err)
	}
	if len(repo.customers)+len(repo.subscriptions)+len(repo.transactions) != 0 {
		t.Fatal("expected no mirror writes for an unknown event")
	}
	if len(pub.bodies) != 0 {
		t.Fatal("expected no fan-out for an unknown event")
	}
}

func TestApplyEvent_SubscriptionMissingIdentifiersFails(t *testing.T) {
	repo := &syncRepoStub{}
	syncer := NewSyncer(repo, &publisherStub{}, testLogger())

	event := domain.WebhookEvent{
		EventID:   "evt_5",
		EventType: domain.EventSubscriptionUpdated,
		Data:      json.RawMessage(`{"status":"active"}`),
	}
	if err := syncer.ApplyEvent(context.Background(), event); err == nil {
		t.Fatal("expected error for subscription event without identifiers")
	}
	if len(repo.subscriptions) != 0 {
		t.Fatal("expected no mirror write")
	}
}
