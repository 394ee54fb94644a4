package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	gconfig "github.com/Laisky/go-config/v2"

	"github.com/Laisky/laisky-mcp-gateway/library/db/redis"
)

// Configuration keys recognised by the gateway.
const (
	KeyListen             = "listen"
	KeyAuthMode           = "settings.auth.mode"
	KeyAuthBearerToken    = "settings.auth.bearer_token"
	KeyOAuthIssuer        = "settings.auth.oauth.issuer_base_url"
	KeyOAuthAudience      = "settings.auth.oauth.audience"
	KeyOAuthJWKSURL       = "settings.auth.oauth.jwks_url"
	KeyAPIToken           = "settings.mcp.api_token"
	KeyTelegramToken      = "settings.telegram.token"
	KeyTelegramAPI        = "settings.telegram.api"
	KeyTelegramRecipients = "settings.telegram.recipients"
	KeyCallLogRedisAddr   = "settings.mcp.calllog.redis.addr"
	KeyCallLogRedisDB     = "settings.mcp.calllog.redis.db"
	KeyCallLogRedisKey    = "settings.mcp.calllog.redis.key"
	KeyCallLogMaxEntries  = "settings.mcp.calllog.redis.max_entries"
	KeyProbeInterval      = "settings.probe.interval"
	KeyProbeURL           = "settings.probe.url"
	KeyWebAllowedOrigins  = "settings.web.allowed_origins"
	KeyPublicURL          = "settings.web.public_url"

	// RecipientEnvPrefix prefixes environment variables that bind a recipient
	// name to a Telegram chat id, e.g. CHAT_ID_JHON.
	RecipientEnvPrefix = "CHAT_ID_"
)

// DefaultRecipients are the pre-bound recipients registered even when no
// destination is configured for them yet.
var DefaultRecipients = []string{"jhon", "renata"}

// envBindings maps environment variables onto configuration keys.
var envBindings = map[string]string{
	"MCP_AUTH_MODE":         KeyAuthMode,
	"MCP_TOKEN":             KeyAuthBearerToken,
	"OAUTH_ISSUER_BASE_URL": KeyOAuthIssuer,
	"OAUTH_AUDIENCE":        KeyOAuthAudience,
	"OAUTH_JWKS_URL":        KeyOAuthJWKSURL,
	"MCP_API_TOKEN":         KeyAPIToken,
	"TELEGRAM_BOT_TOKEN":    KeyTelegramToken,
	"TELEGRAM_API_URL":      KeyTelegramAPI,
	"REDIS_ADDR":            KeyCallLogRedisAddr,
	"PROBE_INTERVAL":        KeyProbeInterval,
	"PROBE_URL":             KeyProbeURL,
	"PUBLIC_URL":            KeyPublicURL,
}

// Getter retrieves raw configuration values by dotted key path.
type Getter func(key string) any

// SharedGetter reads from the process-wide go-config store.
func SharedGetter(key string) any {
	return gconfig.Shared.Get(key)
}

// ApplyEnv copies recognised environment variables into the shared config,
// letting the environment override values loaded from file.
func ApplyEnv() {
	applyEnv(os.LookupEnv, func(key string, value any) {
		gconfig.Shared.Set(key, value)
	})

	if port, ok := os.LookupEnv("PORT"); ok && strings.TrimSpace(port) != "" {
		gconfig.Shared.Set(KeyListen, "0.0.0.0:"+strings.TrimSpace(port))
	}
}

func applyEnv(lookup func(string) (string, bool), set func(string, any)) {
	for env, key := range envBindings {
		value, ok := lookup(env)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		set(key, strings.TrimSpace(value))
	}
}

// AuthSettings selects and configures the transport gate.
type AuthSettings struct {
	Mode        string
	BearerToken string
	IssuerURL   string
	Audience    string
	JWKSURL     string
}

// TelegramSettings configures the outbound messaging client.
type TelegramSettings struct {
	Token      string
	API        string
	Recipients []string
}

// CallLogSettings configures the optional redis call log sink.
type CallLogSettings struct {
	RedisAddr  string
	RedisDB    int
	RedisKey   string
	MaxEntries int
}

// ProbeSettings configures the periodic liveness self-check.
type ProbeSettings struct {
	Interval time.Duration
	URL      string
}

// Settings is the resolved gateway configuration, built once at startup.
type Settings struct {
	Listen         string
	PublicURL      string
	Auth           AuthSettings
	APIToken       string
	Telegram       TelegramSettings
	CallLog        CallLogSettings
	Probe          ProbeSettings
	AllowedOrigins []string
}

// Load resolves Settings from the shared configuration.
func Load() Settings {
	return LoadWithGetter(SharedGetter, os.Environ())
}

// LoadWithGetter resolves Settings through get; environ is used to discover
// additional CHAT_ID_* recipients.
func LoadWithGetter(get Getter, environ []string) Settings {
	s := Settings{
		Listen:    stringValue(get, KeyListen),
		PublicURL: stringValue(get, KeyPublicURL),
		Auth: AuthSettings{
			Mode:        strings.ToLower(stringValue(get, KeyAuthMode)),
			BearerToken: stringValue(get, KeyAuthBearerToken),
			IssuerURL:   stringValue(get, KeyOAuthIssuer),
			Audience:    stringValue(get, KeyOAuthAudience),
			JWKSURL:     stringValue(get, KeyOAuthJWKSURL),
		},
		APIToken: stringValue(get, KeyAPIToken),
		Telegram: TelegramSettings{
			Token:      stringValue(get, KeyTelegramToken),
			API:        stringValue(get, KeyTelegramAPI),
			Recipients: recipientNames(get, environ),
		},
		CallLog: CallLogSettings{
			RedisAddr:  stringValue(get, KeyCallLogRedisAddr),
			RedisDB:    intValue(get, KeyCallLogRedisDB, 0),
			RedisKey:   stringValue(get, KeyCallLogRedisKey),
			MaxEntries: intValue(get, KeyCallLogMaxEntries, 1000),
		},
		Probe: ProbeSettings{
			Interval: durationValue(get, KeyProbeInterval, time.Minute),
			URL:      stringValue(get, KeyProbeURL),
		},
		AllowedOrigins: stringSliceValue(get, KeyWebAllowedOrigins),
	}

	if s.Auth.Mode == "" {
		s.Auth.Mode = "none"
	}
	if s.Listen == "" {
		s.Listen = "localhost:3000"
	}
	if s.CallLog.RedisKey == "" {
		s.CallLog.RedisKey = redis.KeyCallLog
	}

	return s
}

// RecipientResolver returns the chat id bound to a recipient name at call
// time, reading the config first and then CHAT_ID_<NAME> from the environment.
func RecipientResolver(get Getter, lookupEnv func(string) (string, bool)) func(name string) string {
	return func(name string) string {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return ""
		}
		if v := stringValue(get, KeyTelegramRecipients+"."+name); v != "" {
			return v
		}
		if lookupEnv == nil {
			return ""
		}
		if v, ok := lookupEnv(RecipientEnvPrefix + strings.ToUpper(name)); ok {
			return strings.TrimSpace(v)
		}

		return ""
	}
}

// recipientNames merges default, configured and environment-declared recipients.
func recipientNames(get Getter, environ []string) []string {
	seen := map[string]struct{}{}
	add := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			seen[name] = struct{}{}
		}
	}

	for _, name := range DefaultRecipients {
		add(name)
	}
	if raw, ok := get(KeyTelegramRecipients).(map[string]any); ok {
		for name := range raw {
			add(name)
		}
	}
	for _, kv := range environ {
		key, _, found := strings.Cut(kv, "=")
		if found && strings.HasPrefix(key, RecipientEnvPrefix) {
			add(strings.TrimPrefix(key, RecipientEnvPrefix))
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func stringValue(get Getter, key string) string {
	switch v := get(key).(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func intValue(get Getter, key string, def int) int {
	switch v := get(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}

	return def
}

func durationValue(get Getter, key string, def time.Duration) time.Duration {
	switch v := get(key).(type) {
	case time.Duration:
		if v > 0 {
			return v
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	case string:
		if parsed, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && parsed > 0 {
			return parsed
		}
	}

	return def
}

func stringSliceValue(get Getter, key string) []string {
	var out []string
	switch v := get(key).(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
	case string:
		out = strings.Split(v, ",")
	}

	result := out[:0]
	for _, item := range out {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
