package domain

// User is the identity resolved from a validated session. The session
// service is the source of truth; this struct only carries what the portal
// needs for lookups and display.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SessionTokens is the opaque token pair held in cookies. The access token
// is a short-lived JWT; the refresh token is exchanged with the session
// service when the access token is near or past expiry.
type SessionTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}
