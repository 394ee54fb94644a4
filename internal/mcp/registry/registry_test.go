package registry

import (
	"context"
	"encoding/json"
	"testing"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	srv "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/calllog"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/toolerr"
)

type echoOutput struct {
	Echo string `json:"echo"`
}

type stubRecorder struct {
	inputs []calllog.RecordInput
}

func (s *stubRecorder) Record(_ context.Context, in calllog.RecordInput) error {
	s.inputs = append(s.inputs, in)
	return nil
}

func echoTool() mcp.Tool {
	return mcp.NewTool("echo",
		mcp.WithDescription("Echo a message."),
		mcp.WithString("id_integracao", mcp.Required()),
		mcp.WithString("message", mcp.Required(), mcp.MinLength(1)),
	)
}

func echoOutputSchema(t *testing.T) *jsonschema.Schema {
	t.Helper()
	schema, err := jsonschema.For[echoOutput](nil)
	require.NoError(t, err)
	return schema
}

// newEchoRegistry registers an echo tool whose handler behaviour is driven by handle.
func newEchoRegistry(t *testing.T, calls *int, handle func(args map[string]any) (*mcp.CallToolResult, error), opts ...Option) *Registry {
	t.Helper()
	r := New(opts...)
	require.NoError(t, r.Register(Descriptor{
		Tool:   echoTool(),
		Output: echoOutputSchema(t),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			*calls++
			return handle(req.GetArguments())
		},
	}))
	return r
}

func okEcho(args map[string]any) (*mcp.CallToolResult, error) {
	msg, _ := args["message"].(string)
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(msg)},
		StructuredContent: echoOutput{Echo: msg},
	}, nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	var calls int
	r := newEchoRegistry(t, &calls, okEcho)

	err := r.Register(Descriptor{Tool: echoTool(), Handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, nil
	}})
	require.ErrorIs(t, err, ErrDuplicateTool)
	require.Equal(t, []string{"echo"}, r.Names())
}

func TestRegisterValidatesDescriptor(t *testing.T) {
	r := New()
	require.Error(t, r.Register(Descriptor{Tool: mcp.NewTool(" ")}))
	require.Error(t, r.Register(Descriptor{Tool: mcp.NewTool("nohandler")}))

	broken := mcp.NewToolWithRawSchema("broken", "", json.RawMessage(`{"type": 12}`))
	require.Error(t, r.Register(Descriptor{
		Tool: broken,
		Handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, nil
		},
	}))
}

func TestInvokeUnknownTool(t *testing.T) {
	_, err := New().Invoke(context.Background(), "nope", nil)
	require.True(t, toolerr.IsCode(err, toolerr.CodeUnknownTool))
}

func TestInvokeSuccess(t *testing.T) {
	var calls int
	r := newEchoRegistry(t, &calls, okEcho)

	res, err := r.Invoke(context.Background(), "echo", map[string]any{
		"id_integracao": "test-token",
		"message":       "oi",
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, echoOutput{Echo: "oi"}, res.StructuredContent)
}

func TestInvokeInputValidation(t *testing.T) {
	tests := []struct {
		name   string
		args   map[string]any
		fields []string
	}{
		{name: "missing message", args: map[string]any{"id_integracao": "t"}, fields: []string{"message"}},
		{name: "missing all", args: nil, fields: []string{"id_integracao", "message"}},
		{name: "wrong type", args: map[string]any{"id_integracao": "t", "message": 42}, fields: []string{"message"}},
		{name: "empty message", args: map[string]any{"id_integracao": "t", "message": ""}, fields: []string{"message"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls int
			r := newEchoRegistry(t, &calls, okEcho)

			_, err := r.Invoke(context.Background(), "echo", tc.args)
			typed, ok := toolerr.AsError(err)
			require.True(t, ok, "got %v", err)
			require.Equal(t, toolerr.CodeInputValidation, typed.Code)
			require.Equal(t, tc.fields, typed.Fields)
			require.Zero(t, calls)
		})
	}
}

func TestInvokeKeepsHandlerErrorCodes(t *testing.T) {
	args := map[string]any{"id_integracao": "t", "message": "m"}

	var calls int
	r := newEchoRegistry(t, &calls, func(map[string]any) (*mcp.CallToolResult, error) {
		return nil, toolerr.New(toolerr.CodeMissingConfiguration, "recipient is not configured")
	})
	_, err := r.Invoke(context.Background(), "echo", args)
	require.True(t, toolerr.IsCode(err, toolerr.CodeMissingConfiguration))
	require.Equal(t, 1, calls)

	r = newEchoRegistry(t, &calls, func(map[string]any) (*mcp.CallToolResult, error) {
		return nil, errors.New("boom")
	})
	_, err = r.Invoke(context.Background(), "echo", args)
	require.True(t, toolerr.IsCode(err, toolerr.CodeHandler))
}

func TestInvokeValidatesOutput(t *testing.T) {
	var calls int
	r := newEchoRegistry(t, &calls, func(map[string]any) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{StructuredContent: map[string]any{"other": 1}}, nil
	})

	_, err := r.Invoke(context.Background(), "echo", map[string]any{"id_integracao": "t", "message": "m"})
	require.True(t, toolerr.IsCode(err, toolerr.CodeHandler), "got %v", err)

	r = newEchoRegistry(t, &calls, func(map[string]any) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{}, nil
	})
	_, err = r.Invoke(context.Background(), "echo", map[string]any{"id_integracao": "t", "message": "m"})
	require.True(t, toolerr.IsCode(err, toolerr.CodeHandler))
}

func TestMountedHandlerRendersErrorsAndRecords(t *testing.T) {
	rec := &stubRecorder{}
	var calls int
	r := newEchoRegistry(t, &calls, okEcho, WithRecorder(rec), WithCredentialField("id_integracao"))

	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: map[string]any{"id_integracao": "test-token"}}}
	ctx := auth.WithPrincipal(context.Background(), &auth.Principal{Scheme: "jwt", Subject: "client-42"})
	res, err := r.mountedHandler("echo")(ctx, req)
	require.NoError(t, err)
	require.True(t, res.IsError)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	require.Equal(t, "INPUT_VALIDATION_ERROR: invalid arguments: message", text.Text)

	req.Params.Arguments = map[string]any{"id_integracao": "test-token", "message": "oi"}
	res, err = r.mountedHandler("echo")(ctx, req)
	require.NoError(t, err)
	require.False(t, res.IsError)

	require.Len(t, rec.inputs, 2)
	require.Equal(t, calllog.StatusError, rec.inputs[0].Status)
	require.Equal(t, string(toolerr.CodeInputValidation), rec.inputs[0].ErrorCode)
	require.Equal(t, calllog.StatusSuccess, rec.inputs[1].Status)
	require.Equal(t, "jwt", rec.inputs[1].AuthScheme)
	require.Equal(t, "client-42", rec.inputs[1].Subject)
	for _, in := range rec.inputs {
		for _, v := range in.Parameters {
			require.NotEqual(t, "test-token", v)
		}
	}
	require.Equal(t, "***oken", rec.inputs[1].Parameters["id_integracao"])
	require.Equal(t, "oi", rec.inputs[1].Parameters["message"])
}

func TestMountAddsTools(t *testing.T) {
	var calls int
	r := newEchoRegistry(t, &calls, okEcho)
	s := srv.NewMCPServer("test", "0.0.0", srv.WithToolCapabilities(true))
	r.Mount(s)

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"name":"echo"`)

	resp = s.HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"id_integracao":"t","message":"oi"}}}`))
	raw, err = json.Marshal(resp)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"echo":"oi"`)
	require.Equal(t, 1, calls)
}
