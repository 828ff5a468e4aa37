package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code
	// verifier. 32 bytes provides 256 bits of entropy.
	pkceVerifierBytes = 32

	// stateBytes is the number of random bytes for the OAuth state
	// parameter. 32 bytes encodes to 43 base64url characters.
	stateBytes = 32
)

// PKCEChallenge holds a PKCE (Proof Key for Code Exchange) verifier/challenge
// pair. PKCE prevents interception of the authorization code by public
// clients.
type PKCEChallenge struct {
	// CodeVerifier is the secret, base64url-encoded random string.
	CodeVerifier string

	// CodeChallenge is the SHA256 hash of the verifier, base64url-encoded.
	// This is the only form transmitted in the authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}

// GeneratePKCE generates a new PKCE code verifier and its S256 challenge.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)
	hash := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}, nil
}

// GenerateState generates an unpredictable state parameter. The state links
// the authorization callback to the original request and prevents CSRF.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
