// Package calllog records every tool invocation to one or more sinks.
package calllog

import (
	"context"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

// Status enumerations for recorded tool calls.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Clock provides the current time in UTC.
type Clock func() time.Time

// Recorder stores tool invocations.
type Recorder interface {
	Record(ctx context.Context, input RecordInput) error
}

// RecordInput captures the information required to record a tool invocation.
type RecordInput struct {
	ToolName string
	// AuthScheme and Subject identify the principal accepted by the
	// transport gate. The shared tool credential is never recorded.
	AuthScheme   string
	Subject      string
	Status       string
	ErrorCode    string
	ErrorMessage string
	Duration     time.Duration
	Parameters   map[string]any
	OccurredAt   time.Time
}

// buildRecord validates input and converts it into a Record.
func buildRecord(input RecordInput, clock Clock) (*Record, error) {
	toolName := strings.TrimSpace(input.ToolName)
	if toolName == "" {
		return nil, errors.New("tool name is required")
	}
	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = StatusSuccess
	}

	occurred := input.OccurredAt
	if occurred.IsZero() {
		occurred = clock()
	}

	return &Record{
		ID:             newRecordID(),
		ToolName:       toolName,
		AuthScheme:     strings.TrimSpace(input.AuthScheme),
		Subject:        strings.TrimSpace(input.Subject),
		Status:         status,
		ErrorCode:      strings.TrimSpace(input.ErrorCode),
		ErrorMessage:   strings.TrimSpace(input.ErrorMessage),
		DurationMillis: input.Duration.Milliseconds(),
		Parameters:     input.Parameters,
		OccurredAt:     occurred.UTC(),
	}, nil
}

func defaultClock() time.Time {
	return time.Now().UTC()
}

// LogRecorder writes one structured log line per invocation.
type LogRecorder struct {
	logger logSDK.Logger
	clock  Clock
}

// NewLogRecorder constructs a LogRecorder. A nil logger falls back to the shared one.
func NewLogRecorder(logger logSDK.Logger, clock Clock) *LogRecorder {
	if logger == nil {
		logger = log.Logger.Named("call_log")
	}
	if clock == nil {
		clock = defaultClock
	}
	return &LogRecorder{logger: logger, clock: clock}
}

// Record implements Recorder.
func (r *LogRecorder) Record(_ context.Context, input RecordInput) error {
	record, err := buildRecord(input, r.clock)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("id", record.ID.String()),
		zap.String("tool", record.ToolName),
		zap.String("auth_scheme", record.AuthScheme),
		zap.String("subject", record.Subject),
		zap.String("status", record.Status),
		zap.Int64("duration_ms", record.DurationMillis),
		zap.Any("parameters", record.Parameters),
	}
	if record.Status == StatusError {
		fields = append(fields,
			zap.String("error_code", record.ErrorCode),
			zap.String("error", record.ErrorMessage))
		r.logger.Warn("tool call failed", fields...)
		return nil
	}

	r.logger.Info("tool call", fields...)
	return nil
}

// MultiRecorder fans a record out to every wrapped recorder.
type MultiRecorder []Recorder

// NewMultiRecorder drops nil recorders.
func NewMultiRecorder(recorders ...Recorder) MultiRecorder {
	out := make(MultiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Record implements Recorder. Every sink is attempted; the first failure is returned.
func (m MultiRecorder) Record(ctx context.Context, input RecordInput) error {
	var (
		firstErr error
		failed   int
	)
	for _, r := range m {
		if err := r.Record(ctx, input); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed++
		}
	}
	if firstErr != nil {
		return errors.Wrapf(firstErr, "%d of %d call log sinks failed", failed, len(m))
	}

	return nil
}
