package tools

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/registry"
)

// CredentialField is the argument every tool requires to carry the shared secret.
const CredentialField = "id_integracao"

// Clock returns the current time. It enables deterministic tests.
type Clock func() time.Time

// CredentialValidator checks the shared secret presented by a caller.
type CredentialValidator interface {
	Validate(presented string) error
}

// MessageSender delivers a text message to a chat on the messaging platform.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// RecipientResolver returns the chat id bound to a recipient name, or "" when unbound.
type RecipientResolver func(name string) string

// Tool exposes the capabilities required by the MCP server registration lifecycle.
type Tool interface {
	Definition() mcp.Tool
	OutputSchema() *jsonschema.Schema
	Handle(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Describe converts a Tool into a registry descriptor.
func Describe(t Tool) registry.Descriptor {
	return registry.Descriptor{
		Tool:    t.Definition(),
		Output:  t.OutputSchema(),
		Handler: t.Handle,
	}
}

// RegisterAll registers every tool, stopping at the first conflict.
func RegisterAll(reg *registry.Registry, tools ...Tool) error {
	for _, t := range tools {
		if err := reg.Register(Describe(t)); err != nil {
			return err
		}
	}
	return nil
}

// credentialArgument declares the shared-secret argument on a tool. It is
// not marked required so a missing credential fails the handler's check
// exactly like an empty one.
func credentialArgument() mcp.ToolOption {
	return mcp.WithString(
		CredentialField,
		mcp.Description("Shared integration token authorizing the call. Required."),
	)
}

// mustOutputSchema derives the output schema of T. T is a fixed struct
// declared in this package, so a failure is a programming error.
func mustOutputSchema[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(err)
	}
	return schema
}

// authorize runs the credential check every handler performs before any side effect.
func authorize(validator CredentialValidator, req mcp.CallToolRequest) error {
	presented, _ := req.GetArguments()[CredentialField].(string)
	return validator.Validate(presented)
}
