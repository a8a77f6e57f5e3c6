/**
 * @description
 * This package provides a client for the billing provider's subscription
 * API. It encapsulates authenticated HTTP requests for the three lifecycle
 * mutations (pause, cancel, resume) plus a read used by the reconciler.
 *
 * @notes
 * - Pause and cancel take effect at the next billing period; resume is
 *   immediate. The provider holds the authoritative state, so mutations
 *   never write back to the local mirror.
 * - Every mutating call carries a fresh Idempotency-Key so transport-level
 *   retries inside the provider cannot double-apply. A caller retry mints a
 *   new key: at-most-once delivery stays the caller's responsibility.
 * - The default HTTP client has a timeout so requests cannot hang
 *   indefinitely.
 */
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brightwave/billing-portal/internal/config"
)

// Provider API base URLs, selected by the BILLING_ENVIRONMENT flag.
const (
	SandboxBaseURL    = "https://sandbox-api.paddle.com"
	ProductionBaseURL = "https://api.paddle.com"
)

// Effective-from semantics the provider accepts on lifecycle mutations.
const (
	effectiveNextBillingPeriod = "next_billing_period"
	effectiveImmediately       = "immediately"
)

// APIError is a non-2xx response from the provider. The body is kept for
// server-side logging; callers surface only a generic failure.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("billing API request failed with status %d: %s", e.StatusCode, e.Body)
}

// BaseURLForEnvironment maps a configured environment to the provider base URL.
func BaseURLForEnvironment(env string) string {
	if env == config.EnvProduction {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// Client is a client for the billing provider's API.
type Client struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewClient creates a new billing provider client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PauseSubscription requests a pause effective at the next billing period.
// The provider's response payload is returned verbatim.
func (c *Client) PauseSubscription(ctx context.Context, subscriptionID string) (json.RawMessage, error) {
	path := fmt.Sprintf("/subscriptions/%s/pause", subscriptionID)
	return c.postMutation(ctx, path, map[string]string{"effective_from": effectiveNextBillingPeriod})
}

// CancelSubscription requests a cancellation effective at the next billing
// period.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (json.RawMessage, error) {
	path := fmt.Sprintf("/subscriptions/%s/cancel", subscriptionID)
	return c.postMutation(ctx, path, map[string]string{"effective_from": effectiveNextBillingPeriod})
}

// ResumeSubscription requests an immediate resume of a paused subscription.
// No local precondition is imposed on the current status; the provider
// decides whether the transition is legal.
func (c *Client) ResumeSubscription(ctx context.Context, subscriptionID string) (json.RawMessage, error) {
	path := fmt.Sprintf("/subscriptions/%s/resume", subscriptionID)
	return c.postMutation(ctx, path, map[string]string{"effective_from": effectiveImmediately})
}

// ProviderSubscription is the provider's view of a subscription, used by the
// reconciler to repair the mirror.
type ProviderSubscription struct {
	ID                   string          `json:"id"`
	CustomerID           string          `json:"customer_id"`
	Status               string          `json:"status"`
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

// GetSubscription fetches the current provider state of a subscription.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/subscriptions/"+subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to billing provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	var envelope struct {
		Data ProviderSubscription `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode subscription response: %w", err)
	}
	return &envelope.Data, nil
}

// postMutation issues an authenticated POST and returns the response's data
// payload untouched.
func (c *Client) postMutation(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to billing provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.errorFromResponse(resp)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode successful response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil, errors.New("billing provider returned an empty data payload")
	}
	return envelope.Data, nil
}

// setHeaders adds the authentication and content-type headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
}

// errorFromResponse reads the body of a failed call into an APIError.
func (c *Client) errorFromResponse(resp *http.Response) error {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Body: "failed to read response body"}
	}
	return &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
}
