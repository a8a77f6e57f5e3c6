/**
 * @description
 * This file implements the client for the external session-management
 * service. Access tokens are validated locally (they are HS256-signed JWTs
 * sharing a secret with the session service); when the access token is near
 * or past expiry the refresh token is exchanged over HTTP and the renewed
 * pair is written through the client's write jar.
 *
 * @notes
 * - The client is constructed per request by the refresh gate, wired to the
 *   request's cookies for reads and the response's cookies for writes.
 * - All outbound calls carry a bounded timeout and the request context.
 */
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/brightwave/billing-portal/internal/domain"
)

// ErrNoSession is returned when no usable session exists: missing cookies,
// an unverifiable token with no refresh token, or a rejected refresh.
var ErrNoSession = errors.New("no active session")

// Tokens within this window of expiry are refreshed proactively so a page's
// follow-up API calls don't race the expiry.
const refreshLeeway = 60 * time.Second

// Client validates and refreshes a browser session against the session
// service. It holds no state across requests.
type Client struct {
	baseURL      string
	jwtSecret    []byte
	cookieDomain string
	reads        Jar
	writes       Jar
	httpClient   *http.Client
	now          func() time.Time
}

// NewClient creates a session client wired to the given read/write jars.
func NewClient(baseURL, jwtSecret, cookieDomain string, reads, writes Jar) *Client {
	return &Client{
		baseURL:      baseURL,
		jwtSecret:    []byte(jwtSecret),
		cookieDomain: cookieDomain,
		reads:        reads,
		writes:       writes,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

// CurrentUser resolves the user behind the session cookies. A still-valid
// access token is decoded locally with no network round trip; an expired or
// near-expiry token triggers a refresh, and the renewed cookie pair lands on
// the write jar before the user is returned.
func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
	accessToken, refreshToken := tokenPair(c.reads)
	if accessToken == "" && refreshToken == "" {
		return nil, ErrNoSession
	}

	if accessToken != "" {
		user, expiresAt, err := c.verifyAccessToken(accessToken)
		if err == nil && expiresAt.Sub(c.now()) > refreshLeeway {
			return user, nil
		}
		// Fall through to refresh on expiry or verification failure.
	}

	if refreshToken == "" {
		return nil, ErrNoSession
	}
	return c.refresh(ctx, refreshToken)
}

// SignOut revokes the session with the session service and expires both
// session cookies. Revocation failure still clears the cookies locally.
func (c *Client) SignOut(ctx context.Context) error {
	accessToken, _ := tokenPair(c.reads)
	defer ExpireSessionCookies(c.writes, c.cookieDomain)

	if accessToken == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach session service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("session service logout failed with status %d", resp.StatusCode)
	}
	return nil
}

// verifyAccessToken checks the token signature and claims locally.
func (c *Client) verifyAccessToken(tokenString string) (*domain.User, time.Time, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return c.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(c.now))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("access token rejected: %w", err)
	}
	if !token.Valid {
		return nil, time.Time{}, errors.New("access token invalid")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, time.Time{}, errors.New("access token missing subject")
	}
	email, _ := claims["email"].(string)

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, time.Time{}, errors.New("access token missing expiry")
	}

	return &domain.User{ID: sub, Email: email}, exp.Time, nil
}

// refreshResponse is the session service's token grant payload.
type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// refresh exchanges the refresh token for a new pair and writes the renewed
// cookies to the write jar.
func (c *Client) refresh(ctx context.Context, refreshToken string) (*domain.User, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	url := c.baseURL + "/token?grant_type=refresh_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach session service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: refresh rejected with status %d: %s", ErrNoSession, resp.StatusCode, respBody)
		}
		return nil, fmt.Errorf("session service refresh failed with status %d: %s", resp.StatusCode, respBody)
	}

	var grant refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if grant.AccessToken == "" || grant.RefreshToken == "" {
		return nil, errors.New("session service returned an incomplete token pair")
	}

	c.writes.SetAll(sessionCookies(domain.SessionTokens{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresIn:    grant.ExpiresIn,
	}, c.cookieDomain))

	return &domain.User{ID: grant.User.ID, Email: grant.User.Email}, nil
}
