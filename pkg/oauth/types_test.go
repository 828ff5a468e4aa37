package oauth

import (
	"errors"
	"testing"
	"time"
)

func TestToken_IsExpiredAt(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		token    Token
		expected bool
	}{
		{
			name:     "valid token",
			token:    Token{AccessToken: "at", ExpiresIn: 3600, ExpiresAt: now.Add(3600 * time.Second)},
			expected: false,
		},
		{
			name:     "expired token",
			token:    Token{AccessToken: "at", ExpiresIn: 3600, ExpiresAt: now.Add(-100 * time.Second)},
			expected: true,
		},
		{
			name:     "expires exactly now",
			token:    Token{AccessToken: "at", ExpiresIn: 3600, ExpiresAt: now},
			expected: true,
		},
		{
			name:     "no expiration never expires",
			token:    Token{AccessToken: "at"},
			expected: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.token.IsExpiredAt(now); got != tc.expected {
				t.Errorf("IsExpiredAt() = %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestToken_FractionElapsed(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		token    Token
		expected float64
	}{
		{
			name: "90 percent elapsed",
			// Issued 3240s ago with a 3600s lifetime.
			token:    Token{ExpiresIn: 3600, ExpiresAt: now.Add(360 * time.Second)},
			expected: 0.9,
		},
		{
			name:     "50 percent elapsed",
			token:    Token{ExpiresIn: 3600, ExpiresAt: now.Add(1800 * time.Second)},
			expected: 0.5,
		},
		{
			name:     "freshly issued",
			token:    Token{ExpiresIn: 3600, ExpiresAt: now.Add(3600 * time.Second)},
			expected: 0,
		},
		{
			name:     "no expiration",
			token:    Token{},
			expected: 0,
		},
		{
			name:     "no known lifetime",
			token:    Token{ExpiresAt: now.Add(time.Hour)},
			expected: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.token.FractionElapsed(now)
			if diff := got - tc.expected; diff > 0.0001 || diff < -0.0001 {
				t.Errorf("FractionElapsed() = %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestToken_ShouldRefresh(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		token     Token
		threshold float64
		expected  bool
	}{
		{
			name:      "90 percent elapsed exceeds 0.8 threshold",
			token:     Token{ExpiresIn: 3600, ExpiresAt: now.Add(360 * time.Second)},
			threshold: 0.8,
			expected:  true,
		},
		{
			name:      "50 percent elapsed below 0.8 threshold",
			token:     Token{ExpiresIn: 3600, ExpiresAt: now.Add(1800 * time.Second)},
			threshold: 0.8,
			expected:  false,
		},
		{
			name:      "expired token always refreshes",
			token:     Token{ExpiresIn: 3600, ExpiresAt: now.Add(-100 * time.Second)},
			threshold: 1.0,
			expected:  true,
		},
		{
			name:      "valid token at threshold 1.0",
			token:     Token{ExpiresIn: 3600, ExpiresAt: now.Add(3600 * time.Second)},
			threshold: 1.0,
			expected:  false,
		},
		{
			name:      "no expiration never refreshes by policy",
			token:     Token{},
			threshold: 0,
			expected:  false,
		},
		{
			name:      "threshold zero refreshes any expiring token",
			token:     Token{ExpiresIn: 3600, ExpiresAt: now.Add(3600 * time.Second)},
			threshold: 0,
			expected:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.token.ShouldRefresh(tc.threshold, now); got != tc.expected {
				t.Errorf("ShouldRefresh(%v) = %v, expected %v", tc.threshold, got, tc.expected)
			}
		})
	}
}

func TestToken_Scopes(t *testing.T) {
	token := Token{Scope: "openid profile email"}
	scopes := token.Scopes()
	if len(scopes) != 3 {
		t.Fatalf("Expected 3 scopes, got %d", len(scopes))
	}
	if scopes[0] != "openid" || scopes[1] != "profile" || scopes[2] != "email" {
		t.Errorf("Unexpected scopes: %v", scopes)
	}

	empty := Token{}
	if empty.Scopes() != nil {
		t.Error("Expected nil scopes for empty scope string")
	}
}

func TestToken_OAuth2Conversion(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	token := Token{
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenType:    "Bearer",
		ExpiresAt:    expiry,
	}

	converted := token.ToOAuth2Token()
	if converted.AccessToken != "at" || converted.RefreshToken != "rt" {
		t.Error("Conversion lost token values")
	}
	if !converted.Expiry.Equal(expiry) {
		t.Errorf("Expiry = %v, expected %v", converted.Expiry, expiry)
	}

	back := FromOAuth2Token(converted)
	if back.AccessToken != token.AccessToken || back.RefreshToken != token.RefreshToken {
		t.Error("Round trip lost token values")
	}
}

func TestSession_Age(t *testing.T) {
	session := NewSession("state", "verifier")
	if session.Age() > time.Second {
		t.Errorf("Fresh session reports age %v", session.Age())
	}

	old := Session{CreatedAt: time.Now().Add(-15 * time.Minute)}
	if old.Age() < 14*time.Minute {
		t.Errorf("Old session reports age %v", old.Age())
	}
}

func TestOAuthConfig_Validate(t *testing.T) {
	valid := OAuthConfig{
		ClientID:              "client",
		AuthorizationEndpoint: "https://auth.example.com/authorize",
		TokenEndpoint:         "https://auth.example.com/token",
		RedirectURI:           "http://localhost:8080/callback",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*OAuthConfig)
	}{
		{"missing clientID", func(c *OAuthConfig) { c.ClientID = "" }},
		{"missing authorizationEndpoint", func(c *OAuthConfig) { c.AuthorizationEndpoint = "" }},
		{"missing tokenEndpoint", func(c *OAuthConfig) { c.TokenEndpoint = "" }},
		{"missing redirectURI", func(c *OAuthConfig) { c.RedirectURI = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
