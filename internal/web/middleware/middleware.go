package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coldchain/auth"
)

type MiddlewareManager struct {
	auth *auth.AuthModule
	log  *zap.Logger
}

func NewMiddlewareManager(auth *auth.AuthModule, log *zap.Logger) *MiddlewareManager {
	return &MiddlewareManager{
		auth: auth,
		log:  log,
	}
}

// RequestLogger logs one line per request
func (m *MiddlewareManager) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("operator", c.GetString("operator")))
	}
}
