package mcp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	mcp "github.com/mark3labs/mcp-go/mcp"
	srv "github.com/mark3labs/mcp-go/server"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/auth"
)

func newMCPHooks(logger logSDK.Logger) *srv.Hooks {
	if logger == nil {
		return nil
	}

	hooks := &srv.Hooks{}

	hooks.AddBeforeAny(func(ctx context.Context, id any, method mcp.MCPMethod, message any) {
		fields := hookLogFields(ctx, id, method)
		if message != nil {
			fields = append(fields, zap.String("request", redactHookPayload(message)))
		}
		logger.Debug("mcp request received", fields...)
	})

	hooks.AddOnSuccess(func(ctx context.Context, id any, method mcp.MCPMethod, message any, result any) {
		fields := hookLogFields(ctx, id, method)
		if result != nil {
			fields = append(fields, zap.String("response", redactHookPayload(result)))
		}
		logger.Debug("mcp request succeeded", fields...)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		fields := hookLogFields(ctx, id, method)
		if message != nil {
			fields = append(fields, zap.String("request", redactHookPayload(message)))
		}
		fields = append(fields, zap.Error(err))
		if shouldDowngradeMCPErrorLog(method, err) {
			logger.Debug("mcp request failed (non-critical)", fields...)
			return
		}
		logger.Error("mcp request failed", fields...)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest, result any) {
		fields := hookLogFields(ctx, id, mcp.MethodToolsCall)
		if message != nil {
			fields = append(fields, zap.String("tool", message.Params.Name))
		}
		if res, ok := result.(*mcp.CallToolResult); ok && res != nil {
			fields = append(fields, zap.Bool("is_error", res.IsError))
		}
		logger.Info("tool call finished", fields...)
	})

	hooks.AddOnRegisterSession(func(ctx context.Context, session srv.ClientSession) {
		logger.Info("mcp session registered", zap.String("session_id", session.SessionID()))
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session srv.ClientSession) {
		logger.Info("mcp session unregistered", zap.String("session_id", session.SessionID()))
	})

	return hooks
}

// shouldDowngradeMCPErrorLog reports whether a failure is a client probing
// for resources, which the gateway does not serve.
func shouldDowngradeMCPErrorLog(method mcp.MCPMethod, err error) bool {
	if err == nil {
		return false
	}
	if !strings.Contains(strings.ToLower(err.Error()), "resources not supported") {
		return false
	}
	switch method {
	case mcp.MethodResourcesList, mcp.MethodResourcesTemplatesList:
		return true
	default:
		return false
	}
}

func hookLogFields(ctx context.Context, id any, method mcp.MCPMethod) []zap.Field {
	fields := []zap.Field{
		zap.Any("request_id", id),
		zap.String("method", string(method)),
	}
	if session := srv.ClientSessionFromContext(ctx); session != nil {
		fields = append(fields, zap.String("session_id", session.SessionID()))
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		fields = append(fields,
			zap.String("auth_scheme", p.Scheme),
			zap.String("subject", p.Subject))
	}

	return fields
}

// withHTTPLogging logs every exchange on the MCP endpoint with credentials
// masked. Bodies are redacted in full before being cut to httpLogBodyLimit.
func withHTTPLogging(next http.Handler, logger logSDK.Logger) http.Handler {
	if next == nil {
		return nil
	}
	if logger == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startAt := time.Now()
		sessionID := strings.TrimSpace(r.Header.Get(srv.HeaderKeySessionID))

		body, err := readAndRestoreRequestBody(r)
		if err != nil {
			logger.Error("read request body", zap.Error(err))
		}
		reqBody, reqTruncated := logBody(body, httpLogBodyLimit)
		logger.Debug("incoming mcp request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("body", reqBody),
			zap.Bool("body_truncated", reqTruncated),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("mcp_session_id", sessionID),
		)

		rec := newBodyRecorder(w, httpLogBodyLimit)
		next.ServeHTTP(rec, r)

		respBody, respTruncated := logBody(rec.buffer.Bytes(), httpLogBodyLimit)
		logger.Debug("outgoing mcp response",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.Status()),
			zap.String("body", respBody),
			zap.Bool("body_truncated", respTruncated || rec.truncated),
			zap.Duration("cost", time.Since(startAt)),
		)
	})
}

// readAndRestoreRequestBody drains r.Body and puts an identical reader back.
func readAndRestoreRequestBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}

	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// logBody redacts data and then cuts it to limit bytes.
func logBody(data []byte, limit int) (string, bool) {
	redacted := redactMCPBody(string(data))
	if len(redacted) <= limit {
		return redacted, false
	}
	return redacted[:limit], true
}

// bodyRecorder keeps the first bodyLimit bytes written to the client.
// It implements http.Flusher so streamed responses are not buffered.
type bodyRecorder struct {
	http.ResponseWriter
	status    int
	buffer    bytes.Buffer
	truncated bool
	bodyLimit int
}

func newBodyRecorder(w http.ResponseWriter, limit int) *bodyRecorder {
	return &bodyRecorder{ResponseWriter: w, bodyLimit: limit}
}

func (b *bodyRecorder) WriteHeader(code int) {
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}

	remaining := b.bodyLimit - b.buffer.Len()
	switch {
	case remaining <= 0:
		b.truncated = true
	case len(p) > remaining:
		b.buffer.Write(p[:remaining])
		b.truncated = true
	default:
		b.buffer.Write(p)
	}

	return b.ResponseWriter.Write(p)
}

func (b *bodyRecorder) Status() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bodyRecorder) Flush() {
	if flusher, ok := b.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (b *bodyRecorder) Unwrap() http.ResponseWriter {
	return b.ResponseWriter
}
