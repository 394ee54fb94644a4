package registry

import (
	"context"
	"strings"
	"time"

	"github.com/Laisky/zap"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/calllog"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/toolerr"
	"github.com/Laisky/laisky-mcp-gateway/library"
)

var clock = func() time.Time { return time.Now().UTC() }

func (r *Registry) record(ctx context.Context, toolName string, args map[string]any, startedAt time.Time, result *mcp.CallToolResult, invokeErr error) {
	if r.recorder == nil {
		r.logger.Debug("call recorder is nil, skipping record", zap.String("tool", toolName))
		return
	}

	input := calllog.RecordInput{
		ToolName:   toolName,
		Status:     calllog.StatusSuccess,
		Duration:   max(clock().Sub(startedAt), 0),
		Parameters: r.redactArguments(args),
		OccurredAt: startedAt,
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		input.AuthScheme = p.Scheme
		input.Subject = p.Subject
	}

	switch {
	case invokeErr != nil:
		input.Status = calllog.StatusError
		input.ErrorCode = string(toolerr.CodeOf(invokeErr))
		input.ErrorMessage = invokeErr.Error()
	case result != nil && result.IsError:
		input.Status = calllog.StatusError
		input.ErrorMessage = resultText(result)
	}

	if err := r.recorder.Record(ctx, input); err != nil {
		r.logger.Warn("record call log", zap.Error(err), zap.String("tool", toolName))
	}
}

// redactArguments copies args, masking the credential field.
func (r *Registry) redactArguments(args map[string]any) map[string]any {
	if len(args) == 0 {
		return map[string]any{}
	}

	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	if r.credentialField != "" {
		if secret, ok := out[r.credentialField].(string); ok {
			out[r.credentialField] = library.MaskSecret(secret)
		}
	}

	return out
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, strings.TrimSpace(text.Text))
		}
	}
	return strings.Join(parts, " | ")
}
