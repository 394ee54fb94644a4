package calllog

import (
	"time"

	"github.com/google/uuid"
)

// Record is a single tool invocation as stored by a sink.
type Record struct {
	ID             uuid.UUID      `json:"id"`
	ToolName       string         `json:"tool"`
	AuthScheme     string         `json:"auth_scheme,omitempty"`
	Subject        string         `json:"subject,omitempty"`
	Status         string         `json:"status"`
	ErrorCode      string         `json:"error_code,omitempty"`
	ErrorMessage   string         `json:"error,omitempty"`
	DurationMillis int64          `json:"duration_ms"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// newRecordID returns a time-ordered id, falling back to a random one.
func newRecordID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
