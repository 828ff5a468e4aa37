package oauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"keywarden/pkg/logging"
	pkgoauth "keywarden/pkg/oauth"
)

// DefaultHTTPTimeout is the default timeout for token endpoint requests.
const DefaultHTTPTimeout = 30 * time.Second

// TokenRequest is a fully-formed token endpoint request. The flow client owns
// construction; the transport only executes it.
type TokenRequest struct {
	// Endpoint is the token endpoint URL.
	Endpoint string

	// Params is the form-encoded body (grant_type, code, refresh_token, ...).
	Params url.Values

	// Headers are additional request headers. Content-Type and Accept are
	// always set by the transport.
	Headers http.Header
}

// TokenResponse is the structured success body of a token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Transport executes token endpoint requests. The core never assumes a
// specific implementation; tests substitute fakes and foreign embeddings can
// route requests through their own stack.
//
// Implementations return *pkgoauth.TransportError for network-level failures
// and *pkgoauth.TokenEndpointError for non-success server responses.
type Transport interface {
	RoundTrip(ctx context.Context, req *TokenRequest) (*TokenResponse, error)
}

// HTTPTransport is the default Transport, backed by net/http.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates an HTTP transport. A nil client gets a default
// one with DefaultHTTPTimeout.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTPTransport{client: client}
}

// RoundTrip posts the form-encoded request and interprets the response per
// RFC 6749. Error bodies are preserved verbatim on the returned error.
func (t *HTTPTransport) RoundTrip(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, strings.NewReader(req.Params.Encode()))
	if err != nil {
		return nil, &pkgoauth.TransportError{Err: err}
	}

	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	for name, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &pkgoauth.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pkgoauth.TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Log status only; error bodies may carry hints about credentials.
		logging.Debug("Transport", "Token endpoint returned status=%d", resp.StatusCode)
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, &pkgoauth.TokenEndpointError{
			StatusCode:  resp.StatusCode,
			Description: "malformed token response",
			Body:        body,
		}
	}

	return &tokenResp, nil
}

// parseErrorResponse decodes an RFC 6749 error document. Unparseable bodies
// still yield a TokenEndpointError carrying the raw payload.
func parseErrorResponse(statusCode int, body []byte) *pkgoauth.TokenEndpointError {
	var errBody struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &errBody)

	return &pkgoauth.TokenEndpointError{
		Code:        errBody.Error,
		Description: errBody.ErrorDescription,
		StatusCode:  statusCode,
		Body:        body,
	}
}
