// Package auth implements the credential gates guarding tool invocations:
// the shared-secret token validator used inside every tool and the
// transport-level gates (none, static bearer, OAuth JWT).
package auth

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/ctxkeys"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/toolerr"
	"github.com/Laisky/laisky-mcp-gateway/library"
)

var (
	// ErrMissingAuthorization indicates that no credential was presented.
	ErrMissingAuthorization = errors.New("authorization required")
	// ErrInvalidAuthorization indicates that the credential was rejected.
	ErrInvalidAuthorization = errors.New("invalid authorization")
)

// Principal describes the caller accepted by a transport gate.
type Principal struct {
	Scheme   string
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]any
}

// WithPrincipal stores the accepted principal on a request context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	if ctx == nil || p == nil {
		return ctx
	}

	return context.WithValue(ctx, ctxkeys.Principal, p)
}

// PrincipalFromContext retrieves the principal accepted by the transport gate.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}

	p, ok := ctx.Value(ctxkeys.Principal).(*Principal)
	if !ok || p == nil {
		return nil, false
	}

	return p, true
}

// ExtractBearerToken returns the credential of an Authorization header.
// Only the Bearer scheme is accepted.
func ExtractBearerToken(header string) (string, error) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", ErrMissingAuthorization
	}

	scheme, _, found := strings.Cut(trimmed, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", errors.Wrap(ErrInvalidAuthorization, "expected bearer scheme")
	}

	token := library.StripBearerPrefix(trimmed)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", errors.Wrap(ErrInvalidAuthorization, "malformed bearer token")
	}

	return token, nil
}

// authenticationError converts a gate or validator failure into a typed error.
func authenticationError(cause error) error {
	return toolerr.Wrap(cause, toolerr.CodeAuthentication, "authentication failed")
}
