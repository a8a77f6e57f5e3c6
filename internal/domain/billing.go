/**
 * @description
 * This file defines the core domain models for the billing-portal service.
 * Customers, subscriptions and transactions are owned by the billing
 * provider; the structs here map the read-only mirror of that data kept in
 * the local database.
 */
package domain

import "time"

// Subscription action values accepted by the dispatcher.
const (
	ActionPause  = "pause"
	ActionCancel = "cancel"
	ActionResume = "resume"
)

// Customer links an authenticated user's email to a billing-provider
// customer. At most one row exists per email.
type Customer struct {
	CustomerID string    `json:"customer_id"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Subscription mirrors a billing-provider subscription. Status values come
// from the provider: 'active', 'trialing', 'paused', 'canceled', 'past_due'.
type Subscription struct {
	SubscriptionID     string     `json:"subscription_id"`
	CustomerID         string     `json:"customer_id"`
	Status             string     `json:"status"`
	PriceID            string     `json:"price_id"`
	ProductID          string     `json:"product_id"`
	ScheduledChange    *string    `json:"scheduled_change,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	FirstBilledAt      *time.Time `json:"first_billed_at,omitempty"`
	PausedAt           *time.Time `json:"paused_at,omitempty"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Transaction mirrors a billing event recorded by the provider for a
// subscription.
type Transaction struct {
	TransactionID  string     `json:"transaction_id"`
	SubscriptionID string     `json:"subscription_id"`
	CustomerID     string     `json:"customer_id"`
	Status         string     `json:"status"`
	Amount         int64      `json:"amount"` // minor units
	Currency       string     `json:"currency"`
	BilledAt       *time.Time `json:"billed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
