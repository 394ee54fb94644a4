package web

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// originMatcher decides which browser origins may call the gateway.
// Entries are exact origins ("https://app.example.com"), host suffix
// patterns ("*.example.com", which also matches example.com) or "*".
type originMatcher struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string
}

func newOriginMatcher(allowed []string) *originMatcher {
	m := &originMatcher{exact: map[string]struct{}{}}
	for _, raw := range allowed {
		entry := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case entry == "":
		case entry == "*":
			m.any = true
		case strings.HasPrefix(entry, "*."):
			m.suffixes = append(m.suffixes, strings.TrimPrefix(entry, "*."))
		default:
			m.exact[strings.TrimSuffix(entry, "/")] = struct{}{}
		}
	}

	return m
}

func (m *originMatcher) allow(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	if m.any {
		return true
	}

	normalized := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	if _, ok := m.exact[normalized]; ok {
		return true
	}

	host := strings.ToLower(parsed.Hostname())
	for _, suffix := range m.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}

	return false
}

// allowCORS answers preflights and decorates responses for allowed origins.
func allowCORS(allowed []string) gin.HandlerFunc {
	matcher := newOriginMatcher(allowed)

	return func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")
		if origin == "" {
			ctx.Next()
			return
		}

		if !matcher.allow(origin) {
			// deny preflights from unknown origins, let simple requests through
			// without CORS headers so the browser blocks them
			if ctx.Request.Method == http.MethodOptions {
				ctx.AbortWithStatus(http.StatusForbidden)
				return
			}
			ctx.Next()
			return
		}

		ctx.Header("Access-Control-Allow-Origin", origin)
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS, HEAD")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, Mcp-Session-Id, Mcp-Protocol-Version, Last-Event-ID")
		ctx.Header("Access-Control-Expose-Headers", "Mcp-Session-Id, WWW-Authenticate")
		ctx.Header("Access-Control-Max-Age", "86400")
		ctx.Header("Vary", "Origin")

		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}

		ctx.Next()
	}
}
