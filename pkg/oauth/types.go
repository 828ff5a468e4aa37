package oauth

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultSessionMaxAge is how long a pending authorization session stays
// redeemable. Sessions older than this are rejected during the code exchange.
const DefaultSessionMaxAge = 10 * time.Minute

// Session represents one pending authorization attempt. It is created when an
// authorization flow starts and consumed exactly once during the callback.
type Session struct {
	// State is the CSRF correlation token. It doubles as the storage key.
	State string `json:"state"`

	// CodeVerifier is the PKCE secret. It is never transmitted except as a
	// hashed challenge in the authorization URL and in plaintext during the
	// code exchange.
	CodeVerifier string `json:"code_verifier"`

	// CreatedAt is when the flow was initiated.
	CreatedAt time.Time `json:"created_at"`
}

// NewSession creates a session for the given state and code verifier.
func NewSession(state, codeVerifier string) *Session {
	return &Session{
		State:        state,
		CodeVerifier: codeVerifier,
		CreatedAt:    time.Now(),
	}
}

// Age returns how long ago the session was created.
func (s *Session) Age() time.Duration {
	return time.Since(s.CreatedAt)
}

// Token represents one issued credential.
type Token struct {
	// AccessToken is the opaque bearer credential.
	AccessToken string `json:"access_token"`

	// RefreshToken is used to obtain new access tokens (optional). Whether it
	// is single-use or reusable is server policy.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the token lifetime in seconds as reported at issuance.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// ExpiresAt is the absolute expiration, computed once from ExpiresIn at
	// issuance or refresh time. Zero means the token never expires by
	// elapsed-time checks.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Scope is the granted scope(s), space-separated.
	Scope string `json:"scope,omitempty"`
}

// IsExpired reports whether the token is past its absolute expiration.
// Tokens without an expiration never expire by elapsed-time checks.
func (t *Token) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

// IsExpiredAt is IsExpired evaluated at a specific instant.
func (t *Token) IsExpiredAt(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}

// FractionElapsed returns how far through its lifetime the token is:
// 0 at issuance, 1 at expiration. Returns 0 for tokens without an
// expiration or a known lifetime.
func (t *Token) FractionElapsed(now time.Time) float64 {
	if t.ExpiresAt.IsZero() || t.ExpiresIn <= 0 {
		return 0
	}
	total := time.Duration(t.ExpiresIn) * time.Second
	issuedAt := t.ExpiresAt.Add(-total)
	elapsed := now.Sub(issuedAt)
	if elapsed < 0 {
		return 0
	}
	return float64(elapsed) / float64(total)
}

// ShouldRefresh reports whether the token needs a refresh under the given
// elapsed-lifetime threshold. A token past its absolute expiration always
// needs one; a token without an expiration never does.
func (t *Token) ShouldRefresh(threshold float64, now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	if t.IsExpiredAt(now) {
		return true
	}
	if t.ExpiresIn <= 0 {
		return false
	}
	return t.FractionElapsed(now) >= threshold
}

// Scopes returns the granted scope as a slice of individual scopes.
func (t *Token) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// ToOAuth2Token converts the token for use with golang.org/x/oauth2.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// FromOAuth2Token converts an oauth2.Token into a keywarden token.
func FromOAuth2Token(src *oauth2.Token) *Token {
	return &Token{
		AccessToken:  src.AccessToken,
		TokenType:    src.TokenType,
		RefreshToken: src.RefreshToken,
		ExpiresAt:    src.Expiry,
	}
}

// AuthFlowResult is returned once per flow start. It is never persisted.
type AuthFlowResult struct {
	// URL is the full authorization URL with query parameters.
	URL string

	// State is the correlation token, also the session storage key.
	State string
}

// OAuthConfig holds the immutable client configuration. It is shared
// read-only across threads for the lifetime of the flow client.
type OAuthConfig struct {
	ClientID                    string `yaml:"clientID"`
	AuthorizationEndpoint       string `yaml:"authorizationEndpoint"`
	TokenEndpoint               string `yaml:"tokenEndpoint"`
	RedirectURI                 string `yaml:"redirectURI"`
	Scope                       string `yaml:"scope,omitempty"`
	DeviceAuthorizationEndpoint string `yaml:"deviceAuthorizationEndpoint,omitempty"`
}

// Validate checks that all required fields are set.
func (c *OAuthConfig) Validate() error {
	missing := ""
	switch {
	case c.ClientID == "":
		missing = "clientID"
	case c.AuthorizationEndpoint == "":
		missing = "authorizationEndpoint"
	case c.TokenEndpoint == "":
		missing = "tokenEndpoint"
	case c.RedirectURI == "":
		missing = "redirectURI"
	}
	if missing != "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, missing)
	}
	return nil
}
