/**
 * @description
 * This file implements the cookie bridge between HTTP requests/responses and
 * the session client. The client never touches the transport directly; it
 * reads the session token pair through one Jar and writes refreshed tokens
 * through another, so the refresh gate owns both ends of the wiring.
 */
package session

import (
	"net/http"

	"github.com/brightwave/billing-portal/internal/domain"
)

// Session cookie names. The pair holds the opaque access/refresh tokens
// issued by the session service.
const (
	AccessTokenCookie  = "bp_access_token"
	RefreshTokenCookie = "bp_refresh_token"
)

// Jar is a cookie source/sink the session client can read from and write to.
type Jar interface {
	GetAll() []*http.Cookie
	SetAll(cookies []*http.Cookie)
}

// RequestJar exposes an inbound request's cookies. Writes are a no-op:
// pages only read session state, cookie writes are deferred to the refresh
// gate's response jar.
type RequestJar struct {
	r *http.Request
}

// NewRequestJar wraps the given request as a read-only Jar.
func NewRequestJar(r *http.Request) *RequestJar {
	return &RequestJar{r: r}
}

// GetAll enumerates every cookie on the request.
func (j *RequestJar) GetAll() []*http.Cookie {
	return j.r.Cookies()
}

// SetAll is a no-op on the request path.
func (j *RequestJar) SetAll(cookies []*http.Cookie) {}

// ResponseJar lands cookie writes on an outbound response.
type ResponseJar struct {
	w       http.ResponseWriter
	written []*http.Cookie
}

// NewResponseJar wraps the given response writer as a write Jar.
func NewResponseJar(w http.ResponseWriter) *ResponseJar {
	return &ResponseJar{w: w}
}

// GetAll returns the cookies written so far, in write order.
func (j *ResponseJar) GetAll() []*http.Cookie {
	return j.written
}

// SetAll appends Set-Cookie headers to the response. Headers must not have
// been flushed yet; the refresh gate runs before any handler output.
func (j *ResponseJar) SetAll(cookies []*http.Cookie) {
	for _, c := range cookies {
		http.SetCookie(j.w, c)
		j.written = append(j.written, c)
	}
}

// tokenPair pulls the session cookies out of a jar. Missing cookies come
// back as empty strings.
func tokenPair(j Jar) (accessToken, refreshToken string) {
	for _, c := range j.GetAll() {
		switch c.Name {
		case AccessTokenCookie:
			accessToken = c.Value
		case RefreshTokenCookie:
			refreshToken = c.Value
		}
	}
	return accessToken, refreshToken
}

// sessionCookies builds the cookie pair for a fresh token set.
func sessionCookies(tokens domain.SessionTokens, cookieDomain string) []*http.Cookie {
	maxAge := int(tokens.ExpiresIn)
	return []*http.Cookie{
		{
			Name:     AccessTokenCookie,
			Value:    tokens.AccessToken,
			Path:     "/",
			Domain:   cookieDomain,
			MaxAge:   maxAge,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		},
		{
			Name:     RefreshTokenCookie,
			Value:    tokens.RefreshToken,
			Path:     "/",
			Domain:   cookieDomain,
			MaxAge:   maxAge,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// HasSessionCookies reports whether the jar carries any part of the session
// token pair. The refresh gate uses it to decide whether stale cookies need
// expiring after a failed validation.
func HasSessionCookies(j Jar) bool {
	accessToken, refreshToken := tokenPair(j)
	return accessToken != "" || refreshToken != ""
}

// ExpireSessionCookies writes expired session cookies to the jar, removing
// any stale token pair from the browser.
func ExpireSessionCookies(j Jar, cookieDomain string) {
	j.SetAll([]*http.Cookie{
		{Name: AccessTokenCookie, Value: "", Path: "/", Domain: cookieDomain, MaxAge: -1, HttpOnly: true, Secure: true, SameSite: http.SameSiteLaxMode},
		{Name: RefreshTokenCookie, Value: "", Path: "/", Domain: cookieDomain, MaxAge: -1, HttpOnly: true, Secure: true, SameSite: http.SameSiteLaxMode},
	})
}
