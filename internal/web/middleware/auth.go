package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequireAuth validates the bearer token. Without a configured secret every
// request passes as the anonymous operator.
func (m *MiddlewareManager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.auth.Enabled() {
			c.Set("operator", "anonymous")
			c.Next()
			return
		}

		operator, err := m.auth.ValidateTokenJWT(c.GetHeader("Authorization"))
		if err != nil {
			m.log.Debug("authentication error", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set("operator", operator)

		c.Next()
	}
}
