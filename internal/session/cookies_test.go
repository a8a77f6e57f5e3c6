package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestJar_GetAllEnumeratesRequestCookies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "at-1"})
	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "rt-1"})
	req.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})

	jar := NewRequestJar(req)
	got := jar.GetAll()
	if len(got) != 3 {
		t.Fatalf("expected 3 cookies, got %d", len(got))
	}

	accessToken, refreshToken := tokenPair(jar)
	if accessToken != "at-1" || refreshToken != "rt-1" {
		t.Fatalf("unexpected token pair: %q / %q", accessToken, refreshToken)
	}
}

func TestRequestJar_SetAllIsNoOp(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	jar := NewRequestJar(req)

	jar.SetAll([]*http.Cookie{{Name: AccessTokenCookie, Value: "should-not-land"}})

	if len(req.Cookies()) != 0 {
		t.Fatal("expected request cookies to be untouched")
	}
	if HasSessionCookies(jar) {
		t.Fatal("expected no session cookies after no-op write")
	}
}

func TestResponseJar_SetAllLandsSetCookieHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	jar := NewResponseJar(rec)

	jar.SetAll([]*http.Cookie{
		{Name: AccessTokenCookie, Value: "at-2", Path: "/"},
		{Name: RefreshTokenCookie, Value: "rt-2", Path: "/"},
	})

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 Set-Cookie headers, got %d", len(cookies))
	}
	if cookies[0].Name != AccessTokenCookie || cookies[0].Value != "at-2" {
		t.Fatalf("unexpected first cookie: %+v", cookies[0])
	}
	if got := jar.GetAll(); len(got) != 2 {
		t.Fatalf("expected jar to report 2 written cookies, got %d", len(got))
	}
}

func TestExpireSessionCookies_RemovesTokenPair(t *testing.T) {
	rec := httptest.NewRecorder()
	jar := NewResponseJar(rec)

	ExpireSessionCookies(jar, "example.com")

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 expired cookies, got %d", len(cookies))
	}
	for _, c := range cookies {
		if c.MaxAge >= 0 {
			t.Fatalf("expected cookie %s to be expired, got MaxAge %d", c.Name, c.MaxAge)
		}
		if c.Value != "" {
			t.Fatalf("expected cookie %s value to be cleared, got %q", c.Name, c.Value)
		}
	}
}
