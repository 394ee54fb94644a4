package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/toolerr"
)

// Mode selects which transport gate guards the MCP endpoint.
type Mode string

const (
	// ModeNone accepts every request; tools still check the shared secret.
	ModeNone Mode = "none"
	// ModeBearer requires a static bearer token.
	ModeBearer Mode = "bearer"
	// ModeJWT requires an RS256 JWT issued by the configured OAuth issuer.
	ModeJWT Mode = "jwt"
)

// ParseMode resolves a configured mode string. Empty means ModeNone.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeNone:
		return ModeNone, nil
	case ModeBearer:
		return ModeBearer, nil
	case ModeJWT, "oauth":
		return ModeJWT, nil
	default:
		return "", toolerr.Newf(toolerr.CodeConfiguration, "unknown auth mode %q", raw)
	}
}

// Gate decides whether an inbound HTTP request may reach the MCP dispatcher.
type Gate interface {
	// Mode reports which gate implementation this is.
	Mode() Mode
	// Authenticate returns the accepted principal or an AUTHENTICATION_ERROR.
	Authenticate(r *http.Request) (*Principal, error)
	// Challenge is the WWW-Authenticate value sent with a rejection.
	Challenge() string
}

// GateConfig is the tagged configuration resolved into a single Gate.
type GateConfig struct {
	Mode        Mode
	BearerToken string
	JWT         JWTConfig
}

// NewGate builds the gate selected by cfg.Mode, failing fast when the
// settings required by that mode are absent.
func NewGate(ctx context.Context, cfg GateConfig, opts ...JWTOption) (Gate, error) {
	switch cfg.Mode {
	case "", ModeNone:
		return NoAuthGate{}, nil
	case ModeBearer:
		gate, err := NewBearerGate(cfg.BearerToken)
		if err != nil {
			return nil, err
		}
		return gate, nil
	case ModeJWT:
		gate, err := NewJWTGate(ctx, cfg.JWT, opts...)
		if err != nil {
			return nil, err
		}
		return gate, nil
	default:
		return nil, toolerr.Newf(toolerr.CodeConfiguration, "unknown auth mode %q", cfg.Mode)
	}
}

// NoAuthGate accepts every request unconditionally.
type NoAuthGate struct{}

// Mode implements Gate.
func (NoAuthGate) Mode() Mode { return ModeNone }

// Authenticate implements Gate.
func (NoAuthGate) Authenticate(*http.Request) (*Principal, error) {
	return &Principal{Scheme: string(ModeNone), Subject: "anonymous"}, nil
}

// Challenge implements Gate.
func (NoAuthGate) Challenge() string { return "" }

// BearerGate compares the presented bearer token with a static token.
type BearerGate struct {
	token []byte
}

// NewBearerGate builds a static bearer gate; an empty token is a configuration error.
func NewBearerGate(token string) (*BearerGate, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, toolerr.New(toolerr.CodeConfiguration, "bearer auth mode requires a transport token")
	}

	return &BearerGate{token: []byte(token)}, nil
}

// Mode implements Gate.
func (g *BearerGate) Mode() Mode { return ModeBearer }

// Authenticate implements Gate.
func (g *BearerGate) Authenticate(r *http.Request) (*Principal, error) {
	token, err := ExtractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, authenticationError(err)
	}

	if subtle.ConstantTimeCompare([]byte(token), g.token) != 1 {
		return nil, authenticationError(ErrInvalidAuthorization)
	}

	return &Principal{Scheme: string(ModeBearer), Subject: "bearer"}, nil
}

// Challenge implements Gate.
func (g *BearerGate) Challenge() string { return "Bearer" }
