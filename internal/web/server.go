// Package web binds the gateway to HTTP with gin.
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/laisky-mcp-gateway/internal/probe"
	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

const (
	// MCPPath serves the streamable MCP transport.
	MCPPath = "/mcp"
	// ResourceMetadataPath advertises the protected resource to OAuth clients.
	ResourceMetadataPath = "/.well-known/oauth-protected-resource"
	// CallLogPath lists recorded tool invocations.
	CallLogPath = "/api/logs"

	shutdownTimeout = 10 * time.Second
)

// PreviewFunc renders the plaintext served on GET /.
type PreviewFunc func() (string, error)

// ProbeStatus reports the latest liveness self-check.
type ProbeStatus interface {
	Status() probe.Result
}

// Config collects what the HTTP surface exposes.
type Config struct {
	// MCP is the streamable transport handler; required.
	MCP http.Handler
	// Gate guards MCP and the call log; nil behaves like the none gate.
	Gate    auth.Gate
	Preview PreviewFunc
	// CallLog is mounted on CallLogPath when set.
	CallLog http.Handler
	Probe   ProbeStatus
	// PublicURL is the externally visible base URL, used in discovery documents.
	PublicURL string
	// Issuer is advertised as the authorization server in jwt mode.
	Issuer         string
	AllowedOrigins []string
	Logger         logSDK.Logger
}

// ResourceMetadata is the OAuth protected resource document.
type ResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	AuthMode               string   `json:"auth_mode"`
}

// Server is the gin engine of the gateway.
type Server struct {
	engine *gin.Engine
	cfg    Config
	logger logSDK.Logger
}

// NewServer builds the routes of the gateway.
func NewServer(cfg Config) (*Server, error) {
	if cfg.MCP == nil {
		return nil, errors.New("mcp handler is required")
	}
	if cfg.Gate == nil {
		cfg.Gate = auth.NoAuthGate{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Logger.Named("web")
	}
	cfg.PublicURL = strings.TrimSuffix(strings.TrimSpace(cfg.PublicURL), "/")

	s := &Server{
		engine: gin.New(),
		cfg:    cfg,
		logger: cfg.Logger,
	}

	s.engine.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLogger(cfg.Logger.Named("gin")),
		),
		allowCORS(cfg.AllowedOrigins),
	)

	s.engine.GET("/health", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "ok")
	})
	s.engine.GET("/health/probe", s.handleProbe)
	s.engine.GET("/", s.handlePreview)
	s.engine.GET(ResourceMetadataPath, s.handleResourceMetadata)

	guarded := s.engine.Group("", auth.GinMiddleware(cfg.Gate))
	mcpHandler := gin.WrapH(cfg.MCP)
	guarded.POST(MCPPath, mcpHandler)
	guarded.GET(MCPPath, mcpHandler)
	guarded.DELETE(MCPPath, mcpHandler)
	if cfg.CallLog != nil {
		guarded.GET(CallLogPath, gin.WrapH(cfg.CallLog))
	}

	return s, nil
}

// Handler exposes the engine as a plain http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on http",
			zap.String("addr", addr),
			zap.String("auth_mode", string(s.cfg.Gate.Mode())))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "listen on %s", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	s.logger.Info("http server stopped")

	return nil
}

func (s *Server) handlePreview(ctx *gin.Context) {
	if s.cfg.Preview == nil {
		ctx.String(http.StatusNotFound, "preview is not configured")
		return
	}

	text, err := s.cfg.Preview()
	if err != nil {
		gmw.GetLogger(ctx).Error("render preview", zap.Error(err))
		ctx.String(http.StatusInternalServerError, "failed to render preview")
		return
	}

	ctx.String(http.StatusOK, text)
}

func (s *Server) handleProbe(ctx *gin.Context) {
	if s.cfg.Probe == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "probe is not enabled"})
		return
	}

	status := s.cfg.Probe.Status()
	code := http.StatusOK
	if !status.At.IsZero() && !status.OK {
		code = http.StatusServiceUnavailable
	}
	ctx.JSON(code, status)
}

func (s *Server) handleResourceMetadata(ctx *gin.Context) {
	base := s.cfg.PublicURL
	if base == "" {
		scheme := "http"
		if ctx.Request.TLS != nil || strings.EqualFold(ctx.GetHeader("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		base = scheme + "://" + ctx.Request.Host
	}

	doc := ResourceMetadata{
		Resource:               base + MCPPath,
		AuthorizationServers:   []string{},
		BearerMethodsSupported: []string{"header"},
		AuthMode:               string(s.cfg.Gate.Mode()),
	}
	if s.cfg.Gate.Mode() == auth.ModeJWT && s.cfg.Issuer != "" {
		doc.AuthorizationServers = append(doc.AuthorizationServers, s.cfg.Issuer)
	}

	ctx.JSON(http.StatusOK, doc)
}
