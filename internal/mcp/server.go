// Package mcp builds the MCP server that exposes the registered tools over
// the streamable HTTP transport.
package mcp

import (
	"context"
	"net/http"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	srv "github.com/mark3labs/mcp-go/server"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/registry"
	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

const (
	// ServerName is advertised to MCP clients during initialization.
	ServerName = "laisky-mcp-gateway"
	// DefaultVersion is advertised when no build version is supplied.
	DefaultVersion = "1.0.0"
	// EndpointPath is the path the streamable transport is served on.
	EndpointPath = "/mcp"

	httpLogBodyLimit = 4 << 10
)

// ServerOption customizes NewServer.
type ServerOption func(*serverOptions)

type serverOptions struct {
	version      string
	instructions string
}

// WithVersion overrides the advertised server version.
func WithVersion(version string) ServerOption {
	return func(o *serverOptions) {
		if version != "" {
			o.version = version
		}
	}
}

// WithInstructions sets the instructions returned on initialize.
func WithInstructions(text string) ServerOption {
	return func(o *serverOptions) {
		o.instructions = text
	}
}

// Server wraps the MCP server state for the HTTP transport.
type Server struct {
	mcpServer *srv.MCPServer
	handler   http.Handler
	registry  *registry.Registry
	logger    logSDK.Logger
}

// NewServer constructs a remote MCP server exposing every tool of reg under a single handler.
func NewServer(reg *registry.Registry, logger logSDK.Logger, opts ...ServerOption) (*Server, error) {
	if reg == nil {
		return nil, errors.New("tool registry is required")
	}
	if len(reg.Names()) == 0 {
		return nil, errors.New("at least one tool must be registered")
	}
	if logger == nil {
		logger = log.Logger
	}

	o := serverOptions{version: DefaultVersion}
	for _, opt := range opts {
		opt(&o)
	}

	serverOpts := []srv.ServerOption{
		srv.WithToolCapabilities(true),
		srv.WithRecovery(),
		srv.WithHooks(newMCPHooks(logger.Named("mcp_hooks"))),
	}
	if o.instructions != "" {
		serverOpts = append(serverOpts, srv.WithInstructions(o.instructions))
	}

	mcpServer := srv.NewMCPServer(ServerName, o.version, serverOpts...)
	reg.Mount(mcpServer)

	streamable := srv.NewStreamableHTTPServer(
		mcpServer,
		srv.WithHTTPContextFunc(propagateAuth),
	)

	s := &Server{
		mcpServer: mcpServer,
		handler:   withHTTPLogging(streamable, logger.Named("mcp_http")),
		registry:  reg,
		logger:    logger.Named("mcp"),
	}
	s.logger.Info("mcp server ready",
		zap.String("version", o.version),
		zap.Strings("tools", reg.Names()))

	return s, nil
}

// Handler returns the HTTP handler that should be mounted to serve MCP traffic.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer exposes the underlying protocol server.
func (s *Server) MCPServer() *srv.MCPServer {
	return s.mcpServer
}

// AvailableToolNames lists the mounted tools in sorted order.
func (s *Server) AvailableToolNames() []string {
	if s == nil || s.registry == nil {
		return nil
	}
	return s.registry.Names()
}

// propagateAuth copies the principal accepted by the transport gate onto the
// context handed to tool handlers, where the call log reads it.
func propagateAuth(ctx context.Context, r *http.Request) context.Context {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		ctx = auth.WithPrincipal(ctx, p)
	}
	return ctx
}
