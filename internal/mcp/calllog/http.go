package calllog

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
)

// Lister is implemented by sinks able to page through recorded calls.
type Lister interface {
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
}

// NewHTTPHandler builds an HTTP handler exposing the call log list API.
// Authorization is expected to be enforced by the surrounding router.
func NewHTTPHandler(lister Lister, logger logSDK.Logger) http.Handler {
	return &httpHandler{lister: lister, logger: logger}
}

type httpHandler struct {
	lister Lister
	logger logSDK.Logger
}

func (h *httpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/logs") && r.Method == http.MethodGet:
		h.handleList(w, r)
	default:
		h.notFound(w, r)
	}
}

func (h *httpHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	logger := h.logFromCtx(ctx)

	if h.lister == nil {
		h.writeErrorWithLogger(w, logger, http.StatusServiceUnavailable, "call log storage is not configured")
		return
	}

	q := r.URL.Query()
	opts := ListOptions{
		Page:     parseIntDefault(q.Get("page"), defaultPage),
		PageSize: parseIntDefault(q.Get("page_size"), defaultPageSize),
		ToolName: q.Get("tool"),
	}.normalized()
	page, pageSize, tool := opts.Page, opts.PageSize, opts.ToolName

	logger.Debug("call log list request",
		zap.String("tool", tool),
		zap.Int("page", page),
		zap.Int("page_size", pageSize))

	result, err := h.lister.List(ctx, opts)
	if err != nil {
		logger.Error("list call logs", zap.Error(err))
		h.writeErrorWithLogger(w, logger, http.StatusInternalServerError, "failed to list call logs")
		return
	}

	totalPages := int(math.Ceil(float64(result.Total) / float64(pageSize)))

	h.writeJSON(w, map[string]any{
		"data": result.Entries,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total_items": result.Total,
			"total_pages": totalPages,
			"has_next":    page < totalPages,
			"has_prev":    page > 1 && totalPages > 0,
		},
		"filters": map[string]any{
			"tool": tool,
		},
	})
}

func (h *httpHandler) notFound(w http.ResponseWriter, r *http.Request) {
	logger := h.logFromCtx(r.Context())
	h.writeErrorWithLogger(w, logger, http.StatusNotFound, "resource not found")
}

// writeErrorWithLogger writes an error response with the provided logger for context-aware logging.
func (h *httpHandler) writeErrorWithLogger(w http.ResponseWriter, logger logSDK.Logger, status int, message string) {
	if status >= 500 {
		logger.Error("call log http error", zap.Int("status", status), zap.String("message", message))
	} else {
		logger.Warn("call log http warning", zap.Int("status", status), zap.String("message", message))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

func (h *httpHandler) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// logFromCtx prefers the request-scoped logger installed by the gin logger middleware.
func (h *httpHandler) logFromCtx(ctx context.Context) logSDK.Logger {
	if logger := gmw.GetLogger(ctx); logger != nil {
		return logger.Named("call_log_http")
	}
	if h.logger != nil {
		return h.logger
	}
	return logSDK.Shared.Named("call_log_http")
}

func parseIntDefault(value string, def int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return def
	}
	num, err := strconv.Atoi(trimmed)
	if err != nil {
		return def
	}
	return num
}
