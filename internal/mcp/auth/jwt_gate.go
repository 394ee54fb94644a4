package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	"github.com/Laisky/zap"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/toolerr"
	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

// SigningAlgorithm is the only JWT algorithm accepted by the jwt gate.
const SigningAlgorithm = "RS256"

const (
	openIDConfigurationPath = "/.well-known/openid-configuration"
	discoveryTimeout        = 10 * time.Second
)

// JWTConfig configures the OAuth JWT gate.
type JWTConfig struct {
	// IssuerURL is the base of OIDC discovery. Tokens must carry it, up to a
	// trailing slash, or the issuer advertised by discovery as iss.
	IssuerURL string
	// Audience is the expected aud claim.
	Audience string
	// JWKSURL skips discovery when set.
	JWKSURL string
	// ResourceMetadataURL is advertised in the WWW-Authenticate challenge.
	ResourceMetadataURL string
}

// JWTOption customizes a JWTGate.
type JWTOption func(*JWTGate)

// WithKeyfunc replaces the JWKS-backed key source, mostly for tests.
func WithKeyfunc(kf jwt.Keyfunc) JWTOption {
	return func(g *JWTGate) {
		g.keys = &keySource{keyfunc: kf}
	}
}

// WithHTTPClient sets the client used for OIDC discovery.
func WithHTTPClient(cli *http.Client) JWTOption {
	return func(g *JWTGate) {
		if cli != nil {
			g.httpcli = cli
		}
	}
}

// JWTGate verifies RS256 bearer tokens issued by the configured issuer.
//
// The JWKS key source is built on first use. Concurrent first callers share
// one build, which runs on the gate's own context so a disconnecting caller
// cannot abort it. A successful build is kept for the gate's lifetime; a
// failed one is retried by the next request.
type JWTGate struct {
	cfg     JWTConfig
	baseCtx context.Context
	httpcli *http.Client

	sf    singleflight.Group
	mu    sync.RWMutex
	keys  *keySource
	build func(context.Context) (*keySource, error)
}

// keySource is a resolved JWKS key function plus the issuer that discovery
// advertised, empty when discovery was skipped.
type keySource struct {
	keyfunc jwt.Keyfunc
	issuer  string
}

// NewJWTGate validates cfg and returns a gate whose key source is resolved lazily.
// ctx bounds the lifetime of the background JWKS refresher.
func NewJWTGate(ctx context.Context, cfg JWTConfig, opts ...JWTOption) (*JWTGate, error) {
	cfg.IssuerURL = strings.TrimSpace(cfg.IssuerURL)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	cfg.JWKSURL = strings.TrimSpace(cfg.JWKSURL)

	if cfg.IssuerURL == "" {
		return nil, toolerr.New(toolerr.CodeConfiguration, "jwt auth mode requires an issuer base url")
	}
	if cfg.Audience == "" {
		return nil, toolerr.New(toolerr.CodeConfiguration, "jwt auth mode requires an audience")
	}
	if err := requireAbsoluteURL(cfg.IssuerURL); err != nil {
		return nil, toolerr.Wrap(err, toolerr.CodeConfiguration, "invalid issuer base url")
	}
	if cfg.JWKSURL != "" {
		if err := requireAbsoluteURL(cfg.JWKSURL); err != nil {
			return nil, toolerr.Wrap(err, toolerr.CodeConfiguration, "invalid jwks url")
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}

	g := &JWTGate{
		cfg:     cfg,
		baseCtx: ctx,
	}
	g.build = g.buildKeySource
	for _, opt := range opts {
		opt(g)
	}

	if g.httpcli == nil {
		cli, err := gutils.NewHTTPClient(gutils.WithHTTPClientTimeout(discoveryTimeout))
		if err != nil {
			return nil, errors.Wrap(err, "new discovery http client")
		}
		g.httpcli = cli
	}

	return g, nil
}

// Mode implements Gate.
func (g *JWTGate) Mode() Mode { return ModeJWT }

// Challenge implements Gate.
func (g *JWTGate) Challenge() string {
	challenge := `Bearer realm="mcp", error="invalid_token"`
	if g.cfg.ResourceMetadataURL != "" {
		challenge += fmt.Sprintf(`, resource_metadata=%q`, g.cfg.ResourceMetadataURL)
	}
	return challenge
}

// Authenticate implements Gate.
func (g *JWTGate) Authenticate(r *http.Request) (*Principal, error) {
	raw, err := ExtractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, authenticationError(err)
	}

	return g.Verify(r.Context(), raw)
}

// Verify checks signature, algorithm, issuer, audience and expiry of raw.
func (g *JWTGate) Verify(ctx context.Context, raw string) (*Principal, error) {
	ks, err := g.keySource(ctx)
	if err != nil {
		return nil, authenticationError(err)
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, ks.keyfunc,
		jwt.WithValidMethods([]string{SigningAlgorithm}),
		jwt.WithAudience(g.cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, authenticationError(errors.Wrap(ErrInvalidAuthorization, err.Error()))
	}
	if !token.Valid {
		return nil, authenticationError(ErrInvalidAuthorization)
	}

	iss, _ := claims.GetIssuer()
	if !g.acceptsIssuer(ks, iss) {
		return nil, authenticationError(errors.Wrapf(ErrInvalidAuthorization, "unexpected issuer %q", iss))
	}

	sub, _ := claims.GetSubject()
	aud, _ := claims.GetAudience()

	return &Principal{
		Scheme:   string(ModeJWT),
		Subject:  sub,
		Issuer:   iss,
		Audience: []string(aud),
		Claims:   claims,
	}, nil
}

// acceptsIssuer matches iss against the discovered issuer exactly, or against
// the configured issuer ignoring a trailing slash.
func (g *JWTGate) acceptsIssuer(ks *keySource, iss string) bool {
	if iss == "" {
		return false
	}
	if ks.issuer != "" && iss == ks.issuer {
		return true
	}

	return strings.TrimRight(iss, "/") == strings.TrimRight(g.cfg.IssuerURL, "/")
}

// keySource returns the shared key source, building it once on success.
// The caller stops waiting when ctx is done, the build keeps going.
func (g *JWTGate) keySource(ctx context.Context) (*keySource, error) {
	g.mu.RLock()
	ks := g.keys
	g.mu.RUnlock()
	if ks != nil {
		return ks, nil
	}

	ch := g.sf.DoChan("jwks", func() (any, error) {
		g.mu.RLock()
		existing := g.keys
		g.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		buildCtx, cancel := context.WithTimeout(g.baseCtx, discoveryTimeout)
		defer cancel()
		built, err := g.build(buildCtx)
		if err != nil {
			log.Logger.Warn("build jwks key source", zap.Error(err))
			return nil, err
		}

		g.mu.Lock()
		g.keys = built
		g.mu.Unlock()
		return built, nil
	})

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wait for jwks key source")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*keySource), nil
	}
}

func (g *JWTGate) buildKeySource(ctx context.Context) (*keySource, error) {
	ks := &keySource{}
	jwksURL := g.cfg.JWKSURL
	if jwksURL == "" {
		doc, err := fetchOpenIDConfiguration(ctx, g.httpcli,
			strings.TrimRight(g.cfg.IssuerURL, "/")+openIDConfigurationPath)
		if err != nil {
			return nil, errors.Wrap(err, "oidc discovery")
		}
		jwksURL = doc.JWKSURI
		ks.issuer = doc.Issuer
	}

	k, err := keyfunc.NewDefaultCtx(g.baseCtx, []string{jwksURL})
	if err != nil {
		return nil, errors.Wrapf(err, "load jwks from %s", jwksURL)
	}
	ks.keyfunc = k.Keyfunc

	log.Logger.Info("jwks key source ready",
		zap.String("jwks_url", jwksURL),
		zap.String("issuer", ks.issuer))
	return ks, nil
}

// openIDConfiguration holds the discovery fields the gate uses.
type openIDConfiguration struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

func fetchOpenIDConfiguration(ctx context.Context, cli *http.Client, discoveryURL string) (*openIDConfiguration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new discovery request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request openid configuration")
	}
	defer resp.Body.Close() // nolint: errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("openid configuration returned status %d", resp.StatusCode)
	}

	doc := new(openIDConfiguration)
	if err = json.NewDecoder(resp.Body).Decode(doc); err != nil {
		return nil, errors.Wrap(err, "decode openid configuration")
	}
	doc.Issuer = strings.TrimSpace(doc.Issuer)
	doc.JWKSURI = strings.TrimSpace(doc.JWKSURI)
	if doc.JWKSURI == "" {
		return nil, errors.New("openid configuration has no jwks_uri")
	}

	return doc, nil
}

func requireAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "parse %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return errors.Errorf("url %q has no host", raw)
	}

	return nil
}
