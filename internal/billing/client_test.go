package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brightwave/billing-portal/internal/config"
)

type capturedRequest struct {
	method         string
	path           string
	authorization  string
	idempotencyKey string
	body           map[string]string
}

func newCaptureServer(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.authorization = r.Header.Get("Authorization")
		captured.idempotencyKey = r.Header.Get("Idempotency-Key")
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&captured.body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	return server, captured
}

func TestPauseSubscription_SendsNextBillingPeriodEffectiveDate(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK, `{"data":{"id":"sub_1","status":"active","scheduled_change":{"action":"pause"}}}`)
	defer server.Close()

	client := NewClient(server.URL, "sk_test_key")
	data, err := client.PauseSubscription(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.method != http.MethodPost || captured.path != "/subscriptions/sub_1/pause" {
		t.Fatalf("unexpected request: %s %s", captured.method, captured.path)
	}
	if captured.body["effective_from"] != "next_billing_period" {
		t.Fatalf("expected next_billing_period effective date, got %q", captured.body["effective_from"])
	}
	if captured.authorization != "Bearer sk_test_key" {
		t.Fatalf("unexpected authorization header: %q", captured.authorization)
	}
	if captured.idempotencyKey == "" {
		t.Fatal("expected an idempotency key on a mutating call")
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.ID != "sub_1" {
		t.Fatalf("expected provider payload verbatim, got %s (err %v)", data, err)
	}
}

func TestCancelSubscription_SendsNextBillingPeriodEffectiveDate(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK, `{"data":{"id":"sub_1","status":"active"}}`)
	defer server.Close()

	client := NewClient(server.URL, "sk_test_key")
	if _, err := client.CancelSubscription(context.Background(), "sub_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.path != "/subscriptions/sub_1/cancel" {
		t.Fatalf("unexpected path: %s", captured.path)
	}
	if captured.body["effective_from"] != "next_billing_period" {
		t.Fatalf("expected next_billing_period effective date, got %q", captured.body["effective_from"])
	}
}

func TestResumeSubscription_IsImmediate(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK, `{"data":{"id":"sub_1","status":"active"}}`)
	defer server.Close()

	client := NewClient(server.URL, "sk_test_key")
	if _, err := client.ResumeSubscription(context.Background(), "sub_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.path != "/subscriptions/sub_1/resume" {
		t.Fatalf("unexpected path: %s", captured.path)
	}
	if captured.body["effective_from"] != "immediately" {
		t.Fatalf("expected immediate resume, got %q", captured.body["effective_from"])
	}
}

func TestMutation_NonSuccessStatusIsAPIError(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusConflict, `{"error":{"code":"subscription_locked"}}`)
	defer server.Close()

	client := NewClient(server.URL, "sk_test_key")
	_, err := client.PauseSubscription(context.Background(), "sub_1")
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", apiErr.StatusCode)
	}
}

func TestGetSubscription_DecodesProviderState(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK,
		`{"data":{"id":"sub_9","customer_id":"ctm_1","status":"paused","scheduled_change":null}}`)
	defer server.Close()

	client := NewClient(server.URL, "sk_test_key")
	sub, err := client.GetSubscription(context.Background(), "sub_9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.method != http.MethodGet || captured.path != "/subscriptions/sub_9" {
		t.Fatalf("unexpected request: %s %s", captured.method, captured.path)
	}
	if sub.Status != "paused" || sub.CustomerID != "ctm_1" {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	if captured.idempotencyKey != "" {
		t.Fatal("reads must not send an idempotency key")
	}
}

func TestBaseURLForEnvironment(t *testing.T) {
	if got := BaseURLForEnvironment(config.EnvProduction); got != ProductionBaseURL {
		t.Fatalf("expected production base URL, got %q", got)
	}
	if got := BaseURLForEnvironment(config.EnvSandbox); got != SandboxBaseURL {
		t.Fatalf("expected sandbox base URL, got %q", got)
	}
}
