package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/toolerr"
)

const (
	testIssuer   = "https://issuer.example.com/"
	testAudience = "https://mcp.example.com"
)

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func signRS256(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": "client-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func newTestJWTGate(t *testing.T, key *rsa.PrivateKey) *JWTGate {
	t.Helper()
	gate, err := NewJWTGate(context.Background(), JWTConfig{
		IssuerURL:           testIssuer,
		Audience:            testAudience,
		ResourceMetadataURL: "https://mcp.example.com/.well-known/oauth-protected-resource",
	}, WithKeyfunc(func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}))
	require.NoError(t, err)
	return gate
}

func TestJWTGateAcceptsValidToken(t *testing.T) {
	key := newTestKey(t)
	gate := newTestJWTGate(t, key)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+signRS256(t, key, validClaims()))

	p, err := gate.Authenticate(req)
	require.NoError(t, err)
	require.Equal(t, "client-42", p.Subject)
	require.Equal(t, testIssuer, p.Issuer)
	require.Equal(t, []string{testAudience}, p.Audience)
	require.Equal(t, string(ModeJWT), p.Scheme)
}

func TestJWTGateRejects(t *testing.T) {
	key := newTestKey(t)
	otherKey := newTestKey(t)
	gate := newTestJWTGate(t, key)

	with := func(k string, v any) jwt.MapClaims {
		c := validClaims()
		if v == nil {
			delete(c, k)
		} else {
			c[k] = v
		}
		return c
	}

	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("shared"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing"},
		{name: "garbage", header: "Bearer not-a-jwt"},
		{name: "wrong audience", header: "Bearer " + signRS256(t, key, with("aud", "https://other.example.com"))},
		{name: "wrong issuer", header: "Bearer " + signRS256(t, key, with("iss", "https://evil.example.com/"))},
		{name: "expired", header: "Bearer " + signRS256(t, key, with("exp", time.Now().Add(-time.Minute).Unix()))},
		{name: "no exp", header: "Bearer " + signRS256(t, key, with("exp", nil))},
		{name: "hs256", header: "Bearer " + hs256},
		{name: "wrong key", header: "Bearer " + signRS256(t, otherKey, validClaims())},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			p, err := gate.Authenticate(req)
			require.Nil(t, p)
			require.True(t, toolerr.IsCode(err, toolerr.CodeAuthentication), "got %v", err)
		})
	}
}

func TestJWTGateChallenge(t *testing.T) {
	gate := newTestJWTGate(t, newTestKey(t))
	require.Equal(t,
		`Bearer realm="mcp", error="invalid_token", resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`,
		gate.Challenge())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/mcp", GinMiddleware(gate), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, gate.Challenge(), rec.Header().Get("WWW-Authenticate"))
}

func TestJWTGateKeySourceBuiltOnceOnSuccess(t *testing.T) {
	key := newTestKey(t)
	gate, err := NewJWTGate(context.Background(), JWTConfig{IssuerURL: testIssuer, Audience: testAudience})
	require.NoError(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	gate.build = func(context.Context) (*keySource, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("issuer unreachable")
		}
		<-release
		return &keySource{keyfunc: func(*jwt.Token) (any, error) { return &key.PublicKey, nil }}, nil
	}

	_, err = gate.Verify(context.Background(), signRS256(t, key, validClaims()))
	require.True(t, toolerr.IsCode(err, toolerr.CodeAuthentication))
	require.EqualValues(t, 1, calls.Load())

	raw := signRS256(t, key, validClaims())
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = gate.Verify(context.Background(), raw)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 2, calls.Load())

	_, err = gate.Verify(context.Background(), signRS256(t, key, validClaims()))
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestJWTGateIssuerTrailingSlash(t *testing.T) {
	key := newTestKey(t)
	gate, err := NewJWTGate(context.Background(), JWTConfig{
		IssuerURL: "https://tenant.auth0.example.com",
		Audience:  testAudience,
	}, WithKeyfunc(func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}))
	require.NoError(t, err)

	claims := validClaims()
	claims["iss"] = "https://tenant.auth0.example.com/"
	p, err := gate.Verify(context.Background(), signRS256(t, key, claims))
	require.NoError(t, err)
	require.Equal(t, "https://tenant.auth0.example.com/", p.Issuer)
}

func TestJWTGateWaitHonoursCallerContext(t *testing.T) {
	key := newTestKey(t)
	gate, err := NewJWTGate(context.Background(), JWTConfig{IssuerURL: testIssuer, Audience: testAudience})
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	gate.build = func(ctx context.Context) (*keySource, error) {
		<-release
		return &keySource{keyfunc: func(*jwt.Token) (any, error) { return &key.PublicKey, nil }}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = gate.Verify(ctx, signRS256(t, key, validClaims()))
	require.True(t, toolerr.IsCode(err, toolerr.CodeAuthentication), "got %v", err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// jwksJSON renders key as a one-entry RS256 JWK set.
func jwksJSON(t *testing.T, kid string, key *rsa.PublicKey) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"alg": SigningAlgorithm,
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	require.NoError(t, err)
	return body
}

func TestJWTGateRetriesFailedDiscovery(t *testing.T) {
	key := newTestKey(t)

	var discoveries atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc(openIDConfigurationPath, func(w http.ResponseWriter, r *http.Request) {
		if discoveries.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"issuer":"` + srv.URL + `/","jwks_uri":"` + srv.URL + `/protocol/openid-connect/certs"}`))
	})
	mux.HandleFunc("/protocol/openid-connect/certs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwksJSON(t, "k1", &key.PublicKey))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gate, err := NewJWTGate(ctx, JWTConfig{IssuerURL: srv.URL, Audience: testAudience},
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	claims := validClaims()
	claims["iss"] = srv.URL + "/"
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	raw, err := token.SignedString(key)
	require.NoError(t, err)

	_, err = gate.Verify(context.Background(), raw)
	require.True(t, toolerr.IsCode(err, toolerr.CodeAuthentication), "got %v", err)
	require.EqualValues(t, 1, discoveries.Load())

	p, err := gate.Verify(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "client-42", p.Subject)
	require.EqualValues(t, 2, discoveries.Load())

	_, err = gate.Verify(context.Background(), raw)
	require.NoError(t, err)
	require.EqualValues(t, 2, discoveries.Load())
}

func TestFetchOpenIDConfiguration(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/ok"+openIDConfigurationPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"issuer":"https://issuer.example.com/","jwks_uri":" https://issuer.example.com/keys "}`))
	})
	mux.HandleFunc("/empty"+openIDConfigurationPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"issuer":"https://issuer.example.com/"}`))
	})

	doc, err := fetchOpenIDConfiguration(context.Background(), srv.Client(), srv.URL+"/ok"+openIDConfigurationPath)
	require.NoError(t, err)
	require.Equal(t, "https://issuer.example.com/", doc.Issuer)
	require.Equal(t, "https://issuer.example.com/keys", doc.JWKSURI)

	_, err = fetchOpenIDConfiguration(context.Background(), srv.Client(), srv.URL+"/empty"+openIDConfigurationPath)
	require.ErrorContains(t, err, "no jwks_uri")

	_, err = fetchOpenIDConfiguration(context.Background(), srv.Client(), srv.URL+"/missing"+openIDConfigurationPath)
	require.ErrorContains(t, err, "status 404")
}
