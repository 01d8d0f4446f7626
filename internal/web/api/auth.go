package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coldchain/auth"
	"coldchain/internal/web/models"
)

func RegisterAuthRoutes(router *gin.Engine, authModule *auth.AuthModule) {
	r := router.Group("/auth")
	{
		r.POST("/token", func(c *gin.Context) {
			var req models.TokenRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := authModule.LoginWithAPIKey(req.Operator, req.APIKey)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}
}
