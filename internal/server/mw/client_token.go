package mw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Tehnologistika/GdeGruz/internal/config"
	"github.com/Tehnologistika/GdeGruz/internal/server/resp"
)

const (
	HeaderClientToken = "X-Client-Token"
	HeaderUserToken   = "X-User-Token"
)

// RequireClientToken защищает ingest-эндпоинты бота: токен общий,
// сравнение за константное время.
func RequireClientToken(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(HeaderClientToken))
		if token == "" {
			resp.Error(c, http.StatusUnauthorized, "missing X-Client-Token")
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Security.ClientToken)) != 1 {
			resp.Error(c, http.StatusUnauthorized, "invalid X-Client-Token")
			c.Abort()
			return
		}
		c.Next()
	}
}
