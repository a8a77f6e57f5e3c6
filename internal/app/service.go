/**
 * @description
 * This file contains the core business logic for the billing portal: the
 * subscription action dispatcher and the account-page reads. The service
 * orchestrates the mirrored store and the billing provider client; it holds
 * no state and mutates nothing locally.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/brightwave/billing-portal/internal/domain"
	"github.com/brightwave/billing-portal/internal/store"
)

// Validation errors surfaced to the request boundary as 400-equivalents.
var (
	ErrMissingFields = errors.New("subscription id and action are required")
	ErrInvalidAction = errors.New("invalid action: must be pause, cancel or resume")
)

// Repository defines the store lookups the service needs.
type Repository interface {
	GetCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	GetSubscriptionForCustomer(ctx context.Context, subscriptionID, customerID string) (*domain.Subscription, error)
	ListSubscriptionsByCustomer(ctx context.Context, customerID string) ([]domain.Subscription, error)
	ListTransactionsByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Transaction, error)
}

// BillingClient defines the provider mutations the service dispatches to.
type BillingClient interface {
	PauseSubscription(ctx context.Context, subscriptionID string) (json.RawMessage, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (json.RawMessage, error)
	ResumeSubscription(ctx context.Context, subscriptionID string) (json.RawMessage, error)
}

// Service provides the business logic for subscription management.
type Service struct {
	repo    Repository
	billing BillingClient
}

// NewService creates a new billing portal service.
func NewService(repo Repository, billing BillingClient) Service {
	return Service{repo: repo, billing: billing}
}

// transactionHistoryLimit caps the account-page billing history read.
const transactionHistoryLimit = 100

// PerformSubscriptionAction validates the request, confirms the acting user
// owns the subscription, and dispatches the mutation to the billing
// provider. The provider payload is returned verbatim on success; nothing is
// written to the mirror (the webhook sync reconciles it later).
func (s Service) PerformSubscriptionAction(ctx context.Context, email, subscriptionID, action string) (json.RawMessage, error) {
	if subscriptionID == "" || action == "" {
		return nil, ErrMissingFields
	}
	switch action {
	case domain.ActionPause, domain.ActionCancel, domain.ActionResume:
	default:
		return nil, ErrInvalidAction
	}

	customer, err := s.repo.GetCustomerByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}

	// Compound lookup doubles as the ownership check: a subscription owned
	// by another customer is indistinguishable from a nonexistent one.
	sub, err := s.repo.GetSubscriptionForCustomer(ctx, subscriptionID, customer.CustomerID)
	if err != nil {
		return nil, err
	}

	switch action {
	case domain.ActionPause:
		return s.billing.PauseSubscription(ctx, sub.SubscriptionID)
	case domain.ActionCancel:
		return s.billing.CancelSubscription(ctx, sub.SubscriptionID)
	default:
		return s.billing.ResumeSubscription(ctx, sub.SubscriptionID)
	}
}

// ListSubscriptions returns the acting user's mirrored subscriptions. A user
// with no customer row simply has none.
func (s Service) ListSubscriptions(ctx context.Context, email string) ([]domain.Subscription, error) {
	customer, err := s.repo.GetCustomerByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if isNotFound(err) {
			return []domain.Subscription{}, nil
		}
		return nil, err
	}
	subs, err := s.repo.ListSubscriptionsByCustomer(ctx, customer.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if subs == nil {
		subs = []domain.Subscription{}
	}
	return subs, nil
}

// ListTransactions returns the acting user's mirrored billing history.
func (s Service) ListTransactions(ctx context.Context, email string) ([]domain.Transaction, error) {
	customer, err := s.repo.GetCustomerByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if isNotFound(err) {
			return []domain.Transaction{}, nil
		}
		return nil, err
	}
	txs, err := s.repo.ListTransactionsByCustomer(ctx, customer.CustomerID, transactionHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrCustomerNotFound)
}

// normalizeEmail lowercases and trims the lookup key so the session identity
// and the mirrored store agree on casing.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
