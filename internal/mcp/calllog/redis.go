package calllog

import (
	"context"
	"encoding/json"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/redis/go-redis/v9"

	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
	// defaultMaxEntries bounds the redis list when no limit is configured.
	defaultMaxEntries = 1000
)

// RedisClient is the subset of go-redis used by RedisRecorder.
type RedisClient interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

var _ RedisClient = (*redis.Client)(nil)

// RedisRecorder keeps the most recent records in a capped redis list,
// newest first.
type RedisRecorder struct {
	rdb        RedisClient
	key        string
	maxEntries int
	logger     logSDK.Logger
	clock      Clock
}

// NewRedisRecorder constructs a RedisRecorder writing to key.
func NewRedisRecorder(rdb RedisClient, key string, maxEntries int, logger logSDK.Logger, clock Clock) (*RedisRecorder, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("redis key is required")
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if logger == nil {
		logger = log.Logger.Named("call_log_redis")
	}
	if clock == nil {
		clock = defaultClock
	}

	return &RedisRecorder{
		rdb:        rdb,
		key:        key,
		maxEntries: maxEntries,
		logger:     logger,
		clock:      clock,
	}, nil
}

// Record implements Recorder.
func (r *RedisRecorder) Record(ctx context.Context, input RecordInput) error {
	record, err := buildRecord(input, r.clock)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal call log record")
	}

	// the record must land even when the invocation's request is cancelled
	ctx = context.WithoutCancel(ctx)
	if err = r.rdb.LPush(ctx, r.key, payload).Err(); err != nil {
		return errors.Wrap(err, "push call log record")
	}
	if err = r.rdb.LTrim(ctx, r.key, 0, int64(r.maxEntries-1)).Err(); err != nil {
		return errors.Wrap(err, "trim call log list")
	}

	r.logger.Debug("recorded call log",
		zap.String("tool", record.ToolName),
		zap.String("status", record.Status))
	return nil
}

// ListOptions configures the result set returned by List.
type ListOptions struct {
	Page     int
	PageSize int
	ToolName string
}

// normalized clamps paging to page >= 1 and 1 <= page size <= maxPageSize.
func (o ListOptions) normalized() ListOptions {
	if o.Page < 1 {
		o.Page = defaultPage
	}
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.PageSize > maxPageSize {
		o.PageSize = maxPageSize
	}
	return o
}

// ListResult packages a page of records along with the number of matches.
type ListResult struct {
	Entries []Record
	Total   int64
}

// List returns recorded calls, newest first, optionally filtered by tool.
func (r *RedisRecorder) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	toolName, err := sanitizeOptionalText(opts.ToolName, maxToolNameLength, "tool name")
	if err != nil {
		return nil, errors.Wrap(err, "sanitize tool name")
	}

	opts = opts.normalized()
	page, size := opts.Page, opts.PageSize

	raws, err := r.rdb.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read call log list")
	}

	matched := make([]Record, 0, len(raws))
	for _, raw := range raws {
		var record Record
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			r.logger.Warn("decode call log record", zap.Error(err))
			continue
		}
		if toolName != "" && record.ToolName != toolName {
			continue
		}
		matched = append(matched, record)
	}

	result := &ListResult{Total: int64(len(matched))}
	start := (page - 1) * size
	if start >= len(matched) {
		result.Entries = []Record{}
		return result, nil
	}
	end := min(start+size, len(matched))
	result.Entries = matched[start:end]

	return result, nil
}
