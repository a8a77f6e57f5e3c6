/**
 * @description
 * This file implements the data access layer for the billing-portal service.
 * The customers, subscriptions and transactions tables are a read-mostly
 * mirror of billing-provider state: the portal reads them for lookups and
 * account pages, and only the webhook sync and the reconciler write to them.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightwave/billing-portal/internal/domain"
)

// Sentinel lookup errors. An ownership mismatch on the compound subscription
// lookup is deliberately indistinguishable from a missing row.
var (
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Repository handles database operations against the mirrored store.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetCustomerByEmail retrieves the customer row for an email. The match is
// exact equality; callers are expected to normalize the email first.
func (r *Repository) GetCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	var customer domain.Customer
	query := `
        SELECT customer_id, email, created_at, updated_at
        FROM customers
        WHERE email = $1
    `
	err := r.db.QueryRow(ctx, query, email).Scan(
		&customer.CustomerID,
		&customer.Email,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}
	return &customer, nil
}

// GetSubscriptionForCustomer retrieves a subscription by its id scoped to
// the owning customer. The compound predicate is the authorization check: a
// subscription owned by someone else comes back ErrSubscriptionNotFound.
func (r *Repository) GetSubscriptionForCustomer(ctx context.Context, subscriptionID, customerID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `
        SELECT subscription_id, customer_id, status, price_id, product_id,
               scheduled_change, started_at, first_billed_at, paused_at, canceled_at,
               current_period_start, current_period_end, updated_at
        FROM subscriptions
        WHERE subscription_id = $1 AND customer_id = $2
    `
	err := r.db.QueryRow(ctx, query, subscriptionID, customerID).Scan(
		&sub.SubscriptionID,
		&sub.CustomerID,
		&sub.Status,
		&sub.PriceID,
		&sub.ProductID,
		&sub.ScheduledChange,
		&sub.StartedAt,
		&sub.FirstBilledAt,
		&sub.PausedAt,
		&sub.CanceledAt,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to query subscription: %w", err)
	}
	return &sub, nil
}

// ListSubscriptionsByCustomer returns every mirrored subscription for a
// customer, newest first.
func (r *Repository) ListSubscriptionsByCustomer(ctx context.Context, customerID string) ([]domain.Subscription, error) {
	query := `
        SELECT subscription_id, customer_id, status, price_id, product_id,
               scheduled_change, started_at, first_billed_at, paused_at, canceled_at,
               current_period_start, current_period_end, updated_at
        FROM subscriptions
        WHERE customer_id = $1
        ORDER BY started_at DESC NULLS LAST
    `
	rows, err := r.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(
			&sub.SubscriptionID,
			&sub.CustomerID,
			&sub.Status,
			&sub.PriceID,
			&sub.ProductID,
			&sub.ScheduledChange,
			&sub.StartedAt,
			&sub.FirstBilledAt,
			&sub.PausedAt,
			&sub.CanceledAt,
			&sub.CurrentPeriodStart,
			&sub.CurrentPeriodEnd,
			&sub.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListTransactionsByCustomer returns the customer's billing history, newest
// first, capped at limit.
func (r *Repository) ListTransactionsByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Transaction, error) {
	query := `
        SELECT transaction_id, subscription_id, customer_id, status, amount, currency, billed_at, created_at
        FROM transactions
        WHERE customer_id = $1
        ORDER BY billed_at DESC NULLS LAST
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(
			&tx.TransactionID,
			&tx.SubscriptionID,
			&tx.CustomerID,
			&tx.Status,
			&tx.Amount,
			&tx.Currency,
			&tx.BilledAt,
			&tx.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// UpsertCustomer creates or refreshes a mirrored customer row.
func (r *Repository) UpsertCustomer(ctx context.Context, customer *domain.Customer) error {
	query := `
        INSERT INTO customers (customer_id, email, created_at, updated_at)
        VALUES ($1, $2, NOW(), NOW())
        ON CONFLICT (customer_id) DO UPDATE SET
            email = EXCLUDED.email,
            updated_at = NOW()
    `
	if _, err := r.db.Exec(ctx, query, customer.CustomerID, customer.Email); err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

// UpsertSubscription creates or refreshes a mirrored subscription row.
func (r *Repository) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	query := `
        INSERT INTO subscriptions (
            subscription_id, customer_id, status, price_id, product_id,
            scheduled_change, started_at, first_billed_at, paused_at, canceled_at,
            current_period_start, current_period_end, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
        ON CONFLICT (subscription_id) DO UPDATE SET
            customer_id = EXCLUDED.customer_id,
            status = EXCLUDED.status,
            price_id = EXCLUDED.price_id,
            product_id = EXCLUDED.product_id,
            scheduled_change = EXCLUDED.scheduled_change,
            started_at = EXCLUDED.started_at,
            first_billed_at = EXCLUDED.first_billed_at,
            paused_at = EXCLUDED.paused_at,
            canceled_at = EXCLUDED.canceled_at,
            current_period_start = EXCLUDED.current_period_start,
            current_period_end = EXCLUDED.current_period_end,
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query,
		sub.SubscriptionID,
		sub.CustomerID,
		sub.Status,
		sub.PriceID,
		sub.ProductID,
		sub.ScheduledChange,
		sub.StartedAt,
		sub.FirstBilledAt,
		sub.PausedAt,
		sub.CanceledAt,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// UpsertTransaction records a mirrored billing event.
func (r *Repository) UpsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
        INSERT INTO transactions (transaction_id, subscription_id, customer_id, status, amount, currency, billed_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (transaction_id) DO UPDATE SET
            status = EXCLUDED.status,
            amount = EXCLUDED.amount,
            currency = EXCLUDED.currency,
            billed_at = EXCLUDED.billed_at
    `
	_, err := r.db.Exec(ctx, query,
		tx.TransactionID,
		tx.SubscriptionID,
		tx.CustomerID,
		tx.Status,
		tx.Amount,
		tx.Currency,
		tx.BilledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return nil
}

// ListSubscriptionsWithScheduledChange returns subscriptions carrying a
// pending scheduled change, for the reconciler to re-check against the
// provider.
func (r *Repository) ListSubscriptionsWithScheduledChange(ctx context.Context) ([]domain.Subscription, error) {
	query := `
        SELECT subscription_id, customer_id, status, price_id, product_id,
               scheduled_change, started_at, first_billed_at, paused_at, canceled_at,
               current_period_start, current_period_end, updated_at
        FROM subscriptions
        WHERE scheduled_change IS NOT NULL
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending scheduled changes: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(
			&sub.SubscriptionID,
			&sub.CustomerID,
			&sub.Status,
			&sub.PriceID,
			&sub.ProductID,
			&sub.ScheduledChange,
			&sub.StartedAt,
			&sub.FirstBilledAt,
			&sub.PausedAt,
			&sub.CanceledAt,
			&sub.CurrentPeriodStart,
			&sub.CurrentPeriodEnd,
			&sub.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
