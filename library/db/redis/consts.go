package redis

const (
	keyPrefix = "mcp:"

	// KeyCallLog is the default list holding recent tool call records.
	KeyCallLog = keyPrefix + "calllog"
)
