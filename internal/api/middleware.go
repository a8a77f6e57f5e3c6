/**
 * @description
 * This file contains the session refresh gate and the request-context
 * plumbing for the authenticated-user guard. The gate is a pass-through
 * filter: it validates (and possibly refreshes) the session for requests
 * under the configured path prefixes, lands any renewed cookies on the
 * response, and records the outcome in the request context. It never blocks
 * or redirects; the access decision belongs to the destination handler.
 */
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brightwave/billing-portal/internal/domain"
	"github.com/brightwave/billing-portal/internal/session"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	userContextKey          contextKey = "sessionUser"
	sessionClientContextKey contextKey = "sessionClient"
)

// SessionClient is the per-request session facade the gate constructs and
// the sign-out handler consumes.
type SessionClient interface {
	CurrentUser(ctx context.Context) (*domain.User, error)
	SignOut(ctx context.Context) error
}

// SessionClientFactory builds a session client wired to the given cookie
// jars. The gate passes the request jar for reads and the response jar for
// writes, so token refreshes land on the outbound response automatically.
type SessionClientFactory func(reads, writes session.Jar) SessionClient

// UserFromContext returns the authenticated user recorded by the refresh
// gate. ok is false for unauthenticated requests; the caller decides
// between a 401 and a login redirect.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userContextKey).(domain.User)
	return user, ok
}

// sessionClientFromContext returns the per-request session client.
func sessionClientFromContext(ctx context.Context) (SessionClient, bool) {
	client, ok := ctx.Value(sessionClientContextKey).(SessionClient)
	return client, ok
}

// SessionRefreshGate creates the middleware that keeps sessions fresh for
// requests under the configured prefixes. Session-service failures are
// logged and treated as absence of a session; the request still proceeds.
func SessionRefreshGate(factory SessionClientFactory, prefixes []string, cookieDomain string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !matchesPrefix(r.URL.Path, prefixes) {
				next.ServeHTTP(w, r)
				return
			}

			reads := session.NewRequestJar(r)
			writes := session.NewResponseJar(w)
			client := factory(reads, writes)

			ctx := context.WithValue(r.Context(), sessionClientContextKey, client)

			user, err := client.CurrentUser(ctx)
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) {
					logger.Error("session validation failed", "path", r.URL.Path, "error", err)
				}
				// Remove stale cookies so the browser stops replaying a
				// dead token pair.
				if session.HasSessionCookies(reads) {
					session.ExpireSessionCookies(writes, cookieDomain)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ctx = context.WithValue(ctx, userContextKey, *user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
