// Package library contains helper functions
package library

import "strings"

// TimeLayout renders instants as UTC ISO-8601 with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z"

const bearerPrefix = "bearer "

// StripBearerPrefix removes any leading, case-insensitive "Bearer " prefixes
// from an Authorization value and returns the trimmed credential.
func StripBearerPrefix(value string) string {
	token := strings.TrimSpace(value)
	for len(token) >= len(bearerPrefix) && strings.EqualFold(token[:len(bearerPrefix)], bearerPrefix) {
		token = strings.TrimSpace(token[len(bearerPrefix):])
	}

	return token
}

// MaskSecret returns a non-sensitive hint of a secret suitable for logs.
func MaskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "***"
	}

	return "***" + secret[len(secret)-4:]
}
