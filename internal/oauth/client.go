package oauth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"keywarden/internal/storage"
	"keywarden/pkg/logging"
	pkgoauth "keywarden/pkg/oauth"
)

// Client owns the OAuth configuration and a handle to storage. It builds
// authorization URLs, performs the code exchange, and constructs refresh
// requests. It does no concurrency coordination of its own; that is the
// refresher's job.
type Client struct {
	config        pkgoauth.OAuthConfig
	store         storage.Storage
	transport     Transport
	sessionMaxAge time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the default HTTP transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithSessionMaxAge overrides how long a pending session stays redeemable.
func WithSessionMaxAge(maxAge time.Duration) Option {
	return func(c *Client) {
		c.sessionMaxAge = maxAge
	}
}

// NewClient creates a flow client over the given configuration and storage.
func NewClient(config pkgoauth.OAuthConfig, store storage.Storage, opts ...Option) *Client {
	c := &Client{
		config:        config,
		store:         store,
		transport:     NewHTTPTransport(nil),
		sessionMaxAge: pkgoauth.DefaultSessionMaxAge,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the client configuration.
func (c *Client) Config() pkgoauth.OAuthConfig {
	return c.config
}

// Storage returns the storage handle, shared with the refresher.
func (c *Client) Storage() storage.Storage {
	return c.store
}

// StartAuthFlow generates state and PKCE material, persists the pending
// session keyed by state, and returns the authorization URL for the user.
func (c *Client) StartAuthFlow(ctx context.Context) (*pkgoauth.AuthFlowResult, error) {
	if err := c.config.Validate(); err != nil {
		return nil, err
	}

	state, err := pkgoauth.GenerateState()
	if err != nil {
		return nil, err
	}

	pkce, err := pkgoauth.GeneratePKCE()
	if err != nil {
		return nil, err
	}

	authURL, err := url.Parse(c.config.AuthorizationEndpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid authorization endpoint: %v", pkgoauth.ErrInvalidConfig, err)
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", c.config.ClientID)
	query.Set("redirect_uri", c.config.RedirectURI)
	query.Set("state", state)
	query.Set("code_challenge", pkce.CodeChallenge)
	query.Set("code_challenge_method", pkce.CodeChallengeMethod)
	if c.config.Scope != "" {
		query.Set("scope", c.config.Scope)
	}
	authURL.RawQuery = query.Encode()

	session := pkgoauth.NewSession(state, pkce.CodeVerifier)
	if err := c.store.SaveSession(ctx, state, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	logging.Debug("OAuth", "Started auth flow (endpoint=%s)", c.config.AuthorizationEndpoint)

	return &pkgoauth.AuthFlowResult{
		URL:   authURL.String(),
		State: state,
	}, nil
}

// ExchangeCode redeems an authorization code against the token endpoint and
// persists the resulting token under the caller-supplied key. The pending
// session for state is consumed: read once, deleted immediately, never
// redeemable a second time even when the exchange itself fails.
func (c *Client) ExchangeCode(ctx context.Context, state, code, key string) (*pkgoauth.Token, error) {
	session, err := c.store.GetSession(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: state %q", pkgoauth.ErrSessionNotFound, state)
	}

	// Consume before anything else can go wrong.
	if err := c.store.DeleteSession(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to consume session: %w", err)
	}

	if session.State != state {
		return nil, pkgoauth.ErrStateMismatch
	}
	if session.Age() > c.sessionMaxAge {
		return nil, fmt.Errorf("%w: created %s ago", pkgoauth.ErrSessionExpired, session.Age().Round(time.Second))
	}

	params := url.Values{}
	params.Set("grant_type", "authorization_code")
	params.Set("code", code)
	params.Set("redirect_uri", c.config.RedirectURI)
	params.Set("client_id", c.config.ClientID)
	params.Set("code_verifier", session.CodeVerifier)

	resp, err := c.transport.RoundTrip(ctx, &TokenRequest{
		Endpoint: c.config.TokenEndpoint,
		Params:   params,
	})
	if err != nil {
		return nil, err
	}

	token := tokenFromResponse(resp)
	if err := c.store.SaveToken(ctx, key, token); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}

	logging.Debug("OAuth", "Exchanged code for token (key=%s, expires_in=%d)", key, token.ExpiresIn)
	return token, nil
}

// Refresh performs a refresh grant for the given token and returns the new
// token with a freshly computed expiration. The result is not persisted;
// persisting under the right key is the caller's responsibility.
func (c *Client) Refresh(ctx context.Context, token *pkgoauth.Token) (*pkgoauth.Token, error) {
	if token.RefreshToken == "" {
		return nil, pkgoauth.ErrNoRefreshToken
	}

	params := url.Values{}
	params.Set("grant_type", "refresh_token")
	params.Set("refresh_token", token.RefreshToken)
	params.Set("client_id", c.config.ClientID)

	resp, err := c.transport.RoundTrip(ctx, &TokenRequest{
		Endpoint: c.config.TokenEndpoint,
		Params:   params,
	})
	if err != nil {
		return nil, err
	}

	fresh := tokenFromResponse(resp)

	// Servers may omit the refresh token when it stays reusable.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = token.RefreshToken
	}
	if fresh.Scope == "" {
		fresh.Scope = token.Scope
	}

	logging.Debug("OAuth", "Refreshed token (expires_in=%d)", fresh.ExpiresIn)
	return fresh, nil
}

// SaveToken persists a token under the given key.
func (c *Client) SaveToken(ctx context.Context, key string, token *pkgoauth.Token) error {
	return c.store.SaveToken(ctx, key, token)
}

// GetToken returns the stored token for the given key, or nil if absent.
func (c *Client) GetToken(ctx context.Context, key string) (*pkgoauth.Token, error) {
	return c.store.GetToken(ctx, key)
}

// DeleteToken removes the stored token for the given key.
func (c *Client) DeleteToken(ctx context.Context, key string) error {
	return c.store.DeleteToken(ctx, key)
}

// tokenFromResponse builds a Token from a token endpoint response, computing
// the absolute expiration once, at issuance time.
func tokenFromResponse(resp *TokenResponse) *pkgoauth.Token {
	token := &pkgoauth.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
		Scope:        resp.Scope,
	}
	if resp.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return token
}
