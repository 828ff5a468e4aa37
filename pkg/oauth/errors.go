package oauth

import (
	"errors"
	"fmt"
)

// Sentinel errors for the credential lifecycle. Callers classify outcomes
// with errors.Is; boundaries wrap these with fmt.Errorf("%w") for context.
var (
	// ErrInvalidConfig indicates required OAuth configuration is missing.
	ErrInvalidConfig = errors.New("invalid oauth configuration")

	// ErrSessionNotFound indicates no pending session exists for a state.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the pending session is past its maximum age.
	ErrSessionExpired = errors.New("session expired")

	// ErrStateMismatch indicates the presented state does not match the
	// stored session.
	ErrStateMismatch = errors.New("state mismatch")

	// ErrTokenNotFound indicates no token is stored under the requested key.
	ErrTokenNotFound = errors.New("token not found")

	// ErrNoRefreshToken indicates the stored token carries no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrLockTimeout indicates a cross-process lock could not be acquired
	// within its bound.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrStorageFailure indicates a storage malfunction (corrupt record,
	// unreachable backing medium). Absent keys are not failures.
	ErrStorageFailure = errors.New("storage failure")
)

// TransportError wraps a network-level failure while talking to the token
// endpoint. The server was never reached, or the connection broke before a
// response could be read.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

// Unwrap returns the underlying network error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// TokenEndpointError is a denial reported by the authorization server. The
// server error code and description are preserved for the caller.
type TokenEndpointError struct {
	// Code is the OAuth2 error code (e.g. "invalid_grant").
	Code string

	// Description is the optional human-readable error_description.
	Description string

	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Body is the raw response payload, kept for callers that need to
	// inspect non-standard server responses.
	Body []byte
}

func (e *TokenEndpointError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("token endpoint returned status %d", e.StatusCode)
	}
	if e.Description != "" {
		return fmt.Sprintf("token endpoint error %q: %s (status %d)", e.Code, e.Description, e.StatusCode)
	}
	return fmt.Sprintf("token endpoint error %q (status %d)", e.Code, e.StatusCode)
}
