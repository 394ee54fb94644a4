package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	srv "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/registry"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/tools"
)

func newClockRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	validator, err := auth.NewTokenValidator("test-token")
	require.NoError(t, err)
	c, err := tools.NewBrasiliaClock(func() time.Time {
		return time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	})
	require.NoError(t, err)
	clockTool, err := tools.NewClockTool(c, validator)
	require.NoError(t, err)

	reg := registry.New(registry.WithCredentialField(tools.CredentialField))
	require.NoError(t, tools.RegisterAll(reg, clockTool))
	return reg
}

func TestNewServerRequiresRegistry(t *testing.T) {
	s, err := NewServer(nil, nil)
	require.Nil(t, s)
	require.Error(t, err)

	s, err = NewServer(registry.New(), nil)
	require.Nil(t, s)
	require.Error(t, err)
}

func TestServerAvailableToolNames(t *testing.T) {
	require.Empty(t, (&Server{}).AvailableToolNames())

	s, err := NewServer(newClockRegistry(t), nil, WithVersion("9.9.9"), WithInstructions("hi"))
	require.NoError(t, err)
	require.Equal(t, []string{tools.ClockToolName}, s.AvailableToolNames())
	require.NotNil(t, s.Handler())
}

func TestServerToolsCall(t *testing.T) {
	s, err := NewServer(newClockRegistry(t), nil)
	require.NoError(t, err)

	resp := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"hora_atual_brasilia","arguments":{"id_integracao":"test-token"}}}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var ok struct {
		Result struct {
			IsError           bool              `json:"isError"`
			StructuredContent tools.ClockOutput `json:"structuredContent"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &ok))
	require.False(t, ok.Result.IsError)
	require.Equal(t, "Horário de Brasília: 12:04:05 (BRT).", ok.Result.StructuredContent.Texto)

	resp = s.MCPServer().HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"hora_atual_brasilia","arguments":{"id_integracao":"wrong"}}}`))
	raw, err = json.Marshal(resp)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"isError":true`)
	require.Contains(t, string(raw), "AUTHENTICATION_ERROR")
	require.NotContains(t, string(raw), "test-token")
}

func postJSONRPC(t *testing.T, url, sessionID string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set(srv.HeaderKeySessionID, sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestServerStreamableHTTP(t *testing.T) {
	s, err := NewServer(newClockRegistry(t), nil)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := postJSONRPC(t, ts.URL+EndpointPath, "",
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessionID := resp.Header.Get(srv.HeaderKeySessionID)

	resp = postJSONRPC(t, ts.URL+EndpointPath, sessionID,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), tools.ClockToolName)
}

func TestPropagateAuth(t *testing.T) {
	principal := &auth.Principal{Scheme: "bearer", Subject: "bearer"}
	r := httptest.NewRequest(http.MethodPost, EndpointPath, nil)
	r.Header.Set("Authorization", "Bearer abc")
	r = r.WithContext(auth.WithPrincipal(r.Context(), principal))

	ctx := propagateAuth(context.Background(), r)
	got, ok := auth.PrincipalFromContext(ctx)
	require.True(t, ok)
	require.Same(t, principal, got)

	ctx = propagateAuth(context.Background(), httptest.NewRequest(http.MethodPost, EndpointPath, nil))
	_, ok = auth.PrincipalFromContext(ctx)
	require.False(t, ok)
}
