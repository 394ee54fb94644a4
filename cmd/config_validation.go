package cmd

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/laisky-mcp-gateway/library/config"
)

// configGetter retrieves raw configuration values by dotted key path.
type configGetter func(key string) any

// validateStartupConfig validates startup configuration from the shared config source.
func validateStartupConfig() error {
	return validateStartupConfigWithGetter(config.SharedGetter)
}

// validateStartupConfigWithGetter collects every configuration problem so the
// operator sees them all at once; it returns nil when the gateway may start.
func validateStartupConfigWithGetter(get configGetter) error {
	if get == nil {
		return errors.New("config getter is nil")
	}

	validationErrs := make([]string, 0)

	validateAuthConfig(get, &validationErrs)
	validateToolConfig(get, &validationErrs)
	validateCallLogConfig(get, &validationErrs)
	validateProbeConfig(get, &validationErrs)
	validateOptionalURL(get, config.KeyPublicURL, &validationErrs)

	if len(validationErrs) == 0 {
		return nil
	}

	return errors.Errorf("invalid configuration:\n - %s", strings.Join(validationErrs, "\n - "))
}

// validateAuthConfig checks the settings each transport gate mode needs.
func validateAuthConfig(get configGetter, errs *[]string) {
	rawMode, _ := get(config.KeyAuthMode).(string)
	mode, err := auth.ParseMode(rawMode)
	if err != nil {
		appendValidationError(errs, "%s must be one of none, bearer, jwt", config.KeyAuthMode)
		return
	}

	switch mode {
	case auth.ModeBearer:
		validateRequiredString(get, config.KeyAuthBearerToken, errs)
	case auth.ModeJWT:
		validateRequiredURL(get, config.KeyOAuthIssuer, errs)
		validateRequiredString(get, config.KeyOAuthAudience, errs)
		validateOptionalURL(get, config.KeyOAuthJWKSURL, errs)
	}
}

// validateToolConfig checks the secrets the tools cannot run without.
func validateToolConfig(get configGetter, errs *[]string) {
	validateRequiredString(get, config.KeyAPIToken, errs)
	validateRequiredString(get, config.KeyTelegramToken, errs)
	validateOptionalURL(get, config.KeyTelegramAPI, errs)

	raw := get(config.KeyTelegramRecipients)
	if raw == nil {
		return
	}
	recipients, ok := raw.(map[string]any)
	if !ok {
		appendValidationError(errs, "%s must be a map of name to chat id", config.KeyTelegramRecipients)
		return
	}
	for name := range recipients {
		validateRequiredStringInMap(errs, recipients, config.KeyTelegramRecipients+"."+name)
	}
}

// validateCallLogConfig checks the optional redis call log sink.
func validateCallLogConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, config.KeyCallLogRedisDB, 0, errs)
	validateOptionalIntMin(get, config.KeyCallLogMaxEntries, 1, errs)
	validateOptionalStringNonEmpty(get, config.KeyCallLogRedisKey, errs)
}

// validateProbeConfig checks the liveness probe schedule.
func validateProbeConfig(get configGetter, errs *[]string) {
	validateOptionalURL(get, config.KeyProbeURL, errs)

	raw := get(config.KeyProbeInterval)
	if raw == nil {
		return
	}
	if d, ok := parseDuration(raw); !ok || d < time.Second {
		appendValidationError(errs, "%s must be a duration of at least 1s", config.KeyProbeInterval)
	}
}

// validateRequiredString validates a key that must hold a non-empty string.
func validateRequiredString(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		appendValidationError(errs, "%s is required", key)
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil || strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must be a non-empty string", key)
	}
}

// validateRequiredURL validates a key that must hold an absolute URL.
func validateRequiredURL(get configGetter, key string, errs *[]string) {
	if get(key) == nil {
		appendValidationError(errs, "%s is required", key)
		return
	}
	validateOptionalURL(get, key, errs)
}

// validateOptionalIntMin validates an optionally configured integer key with a minimum constraint.
func validateOptionalIntMin(get configGetter, key string, min int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalURL validates an optionally configured absolute URL key.
func validateOptionalURL(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string URL", key)
		return
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		appendValidationError(errs, "%s must not be empty", key)
		return
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		appendValidationError(errs, "%s must be a valid absolute URL", key)
	}
}

// validateOptionalStringNonEmpty validates an optionally configured non-empty string key.
func validateOptionalStringNonEmpty(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	if strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must not be empty", key)
	}
}

// validateRequiredStringInMap validates that a required map field is a non-empty string.
func validateRequiredStringInMap(errs *[]string, source map[string]any, fieldPath string) {
	parts := strings.Split(fieldPath, ".")
	key := parts[len(parts)-1]
	value, ok := source[key]
	if !ok {
		appendValidationError(errs, "%s is required", fieldPath)
		return
	}

	var text string
	switch v := value.(type) {
	case int, int64, float64:
		// numeric chat ids are common in yaml
		text = fmt.Sprint(v)
	default:
		var parseErr error
		if text, parseErr = parseStrictString(value); parseErr != nil {
			appendValidationError(errs, "%s must be a non-empty string", fieldPath)
			return
		}
	}
	if strings.TrimSpace(text) == "" {
		appendValidationError(errs, "%s must be a non-empty string", fieldPath)
	}
}

// parseDuration accepts Go duration strings or a number of seconds.
func parseDuration(value any) (time.Duration, bool) {
	switch v := value.(type) {
	case time.Duration:
		return v, true
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		return d, err == nil
	default:
		seconds, err := parseStrictInt(value)
		if err != nil {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
}

// parseStrictInt parses a value as a strict integer.
func parseStrictInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.Trunc(v) != v {
			return 0, errors.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty integer string")
		}
		parsed, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, errors.Wrap(err, "atoi")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported int type %T", value)
	}
}

// parseStrictString parses a value as a strict string.
func parseStrictString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.Errorf("unsupported string type %T", value)
	}
}

// appendValidationError appends a formatted validation message to the collector.
func appendValidationError(errs *[]string, format string, args ...any) {
	if errs == nil {
		return
	}
	*errs = append(*errs, fmt.Sprintf(format, args...))
}
