package auth

import (
	"net/http"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

// GinMiddleware rejects requests refused by gate with 401 and the gate's
// challenge, and stores the accepted principal on the request context.
func GinMiddleware(gate Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if gate == nil {
			c.Next()
			return
		}

		principal, err := gate.Authenticate(c.Request)
		if err != nil {
			log.Logger.Debug("transport gate rejected request",
				zap.String("mode", string(gate.Mode())),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			if challenge := gate.Challenge(); challenge != "" {
				c.Header("WWW-Authenticate", challenge)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}
