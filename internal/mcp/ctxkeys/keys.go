// Package ctxkeys declares the context keys shared across MCP packages.
package ctxkeys

// Key identifies a context value propagated across MCP services.
type Key string

const (
	// Principal stores the identity accepted by the transport gate.
	Principal Key = "mcp_principal"
)
