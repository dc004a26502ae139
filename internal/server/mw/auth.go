package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Tehnologistika/GdeGruz/internal/security"
	"github.com/Tehnologistika/GdeGruz/internal/server/resp"
)

const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

func RequireAuth(jwtm *security.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserToken))
		if raw == "" {
			resp.Error(c, http.StatusUnauthorized, "missing X-User-Token")
			c.Abort()
			return
		}
		id, role, err := jwtm.ParseAccess(raw)
		if err != nil || id == 0 {
			resp.Error(c, http.StatusUnauthorized, "invalid X-User-Token")
			c.Abort()
			return
		}
		c.Set(CtxUserID, id)
		c.Set(CtxRole, role)
		c.Next()
	}
}

// RequireCurator ставится ПОСЛЕ RequireAuth.
func RequireCurator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxRole) != security.RoleCurator {
			resp.Error(c, http.StatusForbidden, "curator role required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID достаёт идентификатор пользователя, положенный RequireAuth.
func UserID(c *gin.Context) int64 {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return 0
	}
	id, _ := v.(int64)
	return id
}
