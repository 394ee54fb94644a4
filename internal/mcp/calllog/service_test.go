package calllog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	errors "github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// memoryList is an in-memory stand-in for a redis list.
type memoryList struct {
	mu      sync.Mutex
	items   map[string][]string
	pushErr error
}

func newMemoryList() *memoryList {
	return &memoryList{items: map[string][]string{}}
}

func (m *memoryList) LPush(ctx context.Context, key string, values ...any) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushErr != nil {
		return redis.NewIntResult(0, m.pushErr)
	}
	for _, v := range values {
		var s string
		switch val := v.(type) {
		case []byte:
			s = string(val)
		case string:
			s = val
		}
		m.items[key] = append([]string{s}, m.items[key]...)
	}
	return redis.NewIntResult(int64(len(m.items[key])), nil)
}

func (m *memoryList) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.items[key]
	if int(stop+1) < len(list) {
		m.items[key] = list[start : stop+1]
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryList) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	return redis.NewStringSliceResult(append([]string(nil), m.items[key]...), nil)
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestBuildRecord(t *testing.T) {
	record, err := buildRecord(RecordInput{
		ToolName:   " hora_atual_brasilia ",
		AuthScheme: "jwt",
		Subject:    " client-42 ",
		Duration:   1500 * time.Millisecond,
	}, fixedClock)
	require.NoError(t, err)

	require.Equal(t, "hora_atual_brasilia", record.ToolName)
	require.Equal(t, StatusSuccess, record.Status)
	require.Equal(t, int64(1500), record.DurationMillis)
	require.Equal(t, fixedClock(), record.OccurredAt)
	require.Equal(t, "jwt", record.AuthScheme)
	require.Equal(t, "client-42", record.Subject)

	_, err = buildRecord(RecordInput{}, fixedClock)
	require.Error(t, err)
}

func TestRedisRecorderRecordAndList(t *testing.T) {
	rdb := newMemoryList()
	rec, err := NewRedisRecorder(rdb, "mcp:calllog", 3, glog.Shared, fixedClock)
	require.NoError(t, err)

	ctx := context.Background()
	for _, tool := range []string{"a", "b", "a", "c"} {
		require.NoError(t, rec.Record(ctx, RecordInput{
			ToolName:   tool,
			AuthScheme: "bearer",
			Subject:    "bearer",
			Parameters: map[string]any{"id_integracao": "***oken"},
		}))
	}
	require.Len(t, rdb.items["mcp:calllog"], 3)
	for _, raw := range rdb.items["mcp:calllog"] {
		require.Contains(t, raw, `"auth_scheme":"bearer"`)
		require.NotContains(t, raw, "caller_hash")
	}

	list, err := rec.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 3, list.Total)
	require.Equal(t, "c", list.Entries[0].ToolName)
	require.Equal(t, "a", list.Entries[1].ToolName)
	require.Equal(t, "b", list.Entries[2].ToolName)

	list, err = rec.List(ctx, ListOptions{ToolName: "a"})
	require.NoError(t, err)
	require.EqualValues(t, 1, list.Total)

	list, err = rec.List(ctx, ListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, list.Entries, 1)
	require.Equal(t, "b", list.Entries[0].ToolName)

	list, err = rec.List(ctx, ListOptions{Page: 9})
	require.NoError(t, err)
	require.Empty(t, list.Entries)

	_, err = rec.List(ctx, ListOptions{ToolName: "bad\x00name"})
	require.Error(t, err)
}

func TestNewRedisRecorderValidates(t *testing.T) {
	_, err := NewRedisRecorder(nil, "k", 0, nil, nil)
	require.Error(t, err)
	_, err = NewRedisRecorder(newMemoryList(), " ", 0, nil, nil)
	require.Error(t, err)

	rec, err := NewRedisRecorder(newMemoryList(), "k", 0, nil, nil)
	require.NoError(t, err)
	require.Equal(t, defaultMaxEntries, rec.maxEntries)
}

type countingRecorder struct {
	calls int
	err   error
}

func (c *countingRecorder) Record(context.Context, RecordInput) error {
	c.calls++
	return c.err
}

func TestMultiRecorderFansOut(t *testing.T) {
	ok := &countingRecorder{}
	failing := &countingRecorder{err: errors.New("redis down")}
	multi := NewMultiRecorder(ok, nil, failing, NewLogRecorder(glog.Shared, fixedClock))
	require.Len(t, multi, 3)

	err := multi.Record(context.Background(), RecordInput{ToolName: "x"})
	require.ErrorContains(t, err, "redis down")
	require.Equal(t, 1, ok.calls)
	require.Equal(t, 1, failing.calls)

	require.NoError(t, NewMultiRecorder(ok).Record(context.Background(), RecordInput{ToolName: "x"}))
}

func TestLogRecorder(t *testing.T) {
	rec := NewLogRecorder(nil, nil)
	require.NoError(t, rec.Record(context.Background(), RecordInput{
		ToolName:     "send_telegram_message",
		Status:       StatusError,
		ErrorCode:    "UPSTREAM_ERROR",
		ErrorMessage: "chat not found",
	}))
	require.Error(t, rec.Record(context.Background(), RecordInput{}))
}

func TestHTTPHandlerList(t *testing.T) {
	rdb := newMemoryList()
	rec, err := NewRedisRecorder(rdb, "k", 10, nil, fixedClock)
	require.NoError(t, err)
	require.NoError(t, rec.Record(context.Background(), RecordInput{ToolName: "hora_atual_brasilia"}))

	h := NewHTTPHandler(rec, glog.Shared)

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/logs?page_size=5", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Data       []Record       `json:"data"`
		Pagination map[string]any `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "hora_atual_brasilia", body.Data[0].ToolName)
	require.EqualValues(t, 1, body.Pagination["total_items"])

	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/logs", strings.NewReader("{}")))
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = httptest.NewRecorder()
	NewHTTPHandler(nil, glog.Shared).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/logs", nil))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestHTTPHandlerListClampsPaging(t *testing.T) {
	rdb := newMemoryList()
	rec, err := NewRedisRecorder(rdb, "k", 200, nil, fixedClock)
	require.NoError(t, err)
	for range 150 {
		require.NoError(t, rec.Record(context.Background(), RecordInput{ToolName: "hora_atual_brasilia"}))
	}
	h := NewHTTPHandler(rec, glog.Shared)

	tests := []struct {
		query      string
		page       int
		pageSize   int
		totalPages int
		hasNext    bool
		entries    int
	}{
		{query: "page_size=500", page: 1, pageSize: maxPageSize, totalPages: 2, hasNext: true, entries: 100},
		{query: "page=0&page_size=-3", page: 1, pageSize: defaultPageSize, totalPages: 8, hasNext: true, entries: 20},
		{query: "page=2&page_size=100", page: 2, pageSize: 100, totalPages: 2, hasNext: false, entries: 50},
	}

	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			resp := httptest.NewRecorder()
			h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/logs?"+tc.query, nil))
			require.Equal(t, http.StatusOK, resp.Code)

			var body struct {
				Data       []Record `json:"data"`
				Pagination struct {
					Page       int  `json:"page"`
					PageSize   int  `json:"page_size"`
					TotalItems int  `json:"total_items"`
					TotalPages int  `json:"total_pages"`
					HasNext    bool `json:"has_next"`
				} `json:"pagination"`
			}
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			require.Len(t, body.Data, tc.entries)
			require.Equal(t, tc.page, body.Pagination.Page)
			require.Equal(t, tc.pageSize, body.Pagination.PageSize)
			require.Equal(t, 150, body.Pagination.TotalItems)
			require.Equal(t, tc.totalPages, body.Pagination.TotalPages)
			require.Equal(t, tc.hasNext, body.Pagination.HasNext)
		})
	}
}
