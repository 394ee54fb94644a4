package mcp

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Laisky/laisky-mcp-gateway/library"
)

// redactedKeys are argument names whose values never reach the logs in clear.
var redactedKeys = map[string]struct{}{
	"id_integracao": {},
	"api_token":     {},
	"authorization": {},
}

// redactedPattern finds credential string values in text that is not a
// complete JSON document, such as SSE frames or a cut-off body. The closing
// quote is optional so a value running off the end still matches.
var redactedPattern = regexp.MustCompile(`(?i)("(?:id_integracao|api_token|authorization)"\s*:\s*")((?:[^"\\]|\\.)*)("?)`)

// redactMCPBody masks credential arguments inside a JSON-RPC payload.
func redactMCPBody(raw string) string {
	if raw == "" {
		return raw
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return redactText(raw)
	}
	out, err := json.Marshal(redactMCPValue(payload))
	if err != nil {
		return raw
	}
	return string(out)
}

// redactText masks credential values found by redactedPattern. A value
// without its closing quote is partial and is hidden entirely.
func redactText(raw string) string {
	return redactedPattern.ReplaceAllStringFunc(raw, func(match string) string {
		sub := redactedPattern.FindStringSubmatch(match)
		if sub[3] == "" {
			return sub[1] + "***"
		}
		return sub[1] + library.MaskSecret(sub[2]) + sub[3]
	})
}

// redactMCPValue walks nested objects and arrays.
func redactMCPValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		output := make(map[string]any, len(v))
		for key, item := range v {
			if _, ok := redactedKeys[strings.ToLower(key)]; ok {
				if s, isString := item.(string); isString {
					output[key] = library.MaskSecret(s)
					continue
				}
			}
			output[key] = redactMCPValue(item)
		}
		return output
	case []any:
		result := make([]any, 0, len(v))
		for _, item := range v {
			result = append(result, redactMCPValue(item))
		}
		return result
	default:
		return value
	}
}

// redactHookPayload renders a redacted JSON string for hook logging.
func redactHookPayload(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return redactMCPBody(string(data))
}
