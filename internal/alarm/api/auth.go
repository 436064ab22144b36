package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// BearerAuth rejects requests without the expected bearer token. An empty
// token disables the check.
func BearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			log.Warn().Str("path", c.FullPath()).Str("remote", c.ClientIP()).Msg("unauthorized alarm api request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, map[string]any{"ok": false, "error": "unauthorized"})
			return
		}
		c.Next()
	}
}
