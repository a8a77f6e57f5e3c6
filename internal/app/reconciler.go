/**
 * @description
 * Scheduled reconciliation of the mirrored store. Webhooks can be lost, and
 * a pause/cancel scheduled for the next billing period only becomes real
 * provider state when that period rolls over, so subscriptions carrying a
 * scheduled change are periodically re-read from the provider and the
 * mirror repaired.
 */
package app

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/brightwave/billing-portal/internal/billing"
	"github.com/brightwave/billing-portal/internal/domain"
)

// ReconcilerRepository defines the store operations the reconciler needs.
type ReconcilerRepository interface {
	ListSubscriptionsWithScheduledChange(ctx context.Context) ([]domain.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *domain.Subscription) error
}

// SubscriptionFetcher reads authoritative subscription state from the
// billing provider.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*billing.ProviderSubscription, error)
}

// Reconciler repairs mirrored subscriptions from provider state.
type Reconciler struct {
	repo    ReconcilerRepository
	billing SubscriptionFetcher
	logger  *slog.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(repo ReconcilerRepository, fetcher SubscriptionFetcher, logger *slog.Logger) *Reconciler {
	return &Reconciler{repo: repo, billing: fetcher, logger: logger}
}

// ReconcileScheduledChanges is the cron entry point. A failure on one
// subscription is logged and the rest still reconcile.
func (r *Reconciler) ReconcileScheduledChanges() {
	ctx := context.Background()
	r.logger.Info("starting scheduled-change reconciliation job")

	subs, err := r.repo.ListSubscriptionsWithScheduledChange(ctx)
	if err != nil {
		r.logger.Error("failed to list subscriptions pending reconciliation", "error", err)
		return
	}
	if len(subs) == 0 {
		r.logger.Info("no subscriptions pending reconciliation")
		return
	}

	repaired := 0
	for _, sub := range subs {
		if err := r.reconcileOne(ctx, sub); err != nil {
			r.logger.Error("failed to reconcile subscription", "subscription_id", sub.SubscriptionID, "error", err)
			continue
		}
		repaired++
	}
	r.logger.Info("scheduled-change reconciliation job finished", "checked", len(subs), "repaired", repaired)
}

func (r *Reconciler) reconcileOne(ctx context.Context, mirrored domain.Subscription) error {
	remote, err := r.billing.GetSubscription(ctx, mirrored.SubscriptionID)
	if err != nil {
		return err
	}

	updated := domain.Subscription{
		SubscriptionID: remote.ID,
		CustomerID:     remote.CustomerID,
		Status:         remote.Status,
		PriceID:        mirrored.PriceID,
		ProductID:      mirrored.ProductID,
		StartedAt:      remote.StartedAt,
		FirstBilledAt:  remote.FirstBilledAt,
		PausedAt:       remote.PausedAt,
		CanceledAt:     remote.CanceledAt,
	}
	updated.ScheduledChange = rawScheduledChange(remote.ScheduledChange)
	if remote.CurrentBillingPeriod != nil {
		updated.CurrentPeriodStart = remote.CurrentBillingPeriod.StartsAt
		updated.CurrentPeriodEnd = remote.CurrentBillingPeriod.EndsAt
	}

	if err := r.repo.UpsertSubscription(ctx, &updated); err != nil {
		return err
	}
	if updated.Status != mirrored.Status || (updated.ScheduledChange == nil) != (mirrored.ScheduledChange == nil) {
		r.logger.Info("repaired mirrored subscription",
			"subscription_id", updated.SubscriptionID,
			"status", updated.Status,
			"previous_status", mirrored.Status)
	}
	return nil
}

func rawScheduledChange(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	change := string(raw)
	return &change
}
