package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/toolerr"
)

// RejectReason tells why a credential was refused.
type RejectReason string

const (
	// RejectMissing means no credential (or an empty one) was presented.
	RejectMissing RejectReason = "missing"
	// RejectInvalid means the credential did not match the configured secret.
	RejectInvalid RejectReason = "invalid"
)

// invalidTokenMessage is shared by both reject reasons so callers cannot tell
// a missing credential from a wrong one.
const invalidTokenMessage = "Token de API inválido ou não fornecido."

// CredentialError is returned by TokenValidator.Validate.
type CredentialError struct {
	Reason RejectReason
}

// Error returns the client-visible message.
func (e *CredentialError) Error() string {
	return invalidTokenMessage
}

// TokenValidator accepts a presented credential only when it equals the
// configured shared secret.
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator builds a validator over secret. An empty secret is a
// configuration error.
func NewTokenValidator(secret string) (*TokenValidator, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, toolerr.New(toolerr.CodeConfiguration, "shared api token is not configured")
	}

	return &TokenValidator{secret: []byte(secret)}, nil
}

// Validate returns nil when presented equals the configured secret, and an
// AUTHENTICATION_ERROR otherwise. Empty and missing credentials are rejected
// the same way.
func (v *TokenValidator) Validate(presented string) error {
	if presented == "" {
		return authenticationError(&CredentialError{Reason: RejectMissing})
	}

	if subtle.ConstantTimeCompare([]byte(presented), v.secret) != 1 {
		return authenticationError(&CredentialError{Reason: RejectInvalid})
	}

	return nil
}
