package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coldchain/internal/db"
	"coldchain/internal/models"
	"coldchain/internal/web/middleware"
	webModels "coldchain/internal/web/models"
)

func RegisterAlertRoutes(r *gin.Engine, middleware *middleware.MiddlewareManager, deps Dependencies, log *zap.Logger) {
	alerts := r.Group("/alerts")
	alerts.Use(middleware.RequireAuth())
	{
		alerts.GET("", func(c *gin.Context) {
			ctx := c.Request.Context()
			list, err := deps.Alerts.ListAlerts(ctx, db.AlertFilter{
				Status:   strings.ToUpper(c.Query("status")),
				DeviceID: c.Query("device"),
				Limit:    queryLimit(c, 100, 1000),
			})
			if err != nil {
				log.Error("alerts query failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
				return
			}

			lang := c.Query("lang")
			views := make([]webModels.AlertView, 0, len(list))
			for i := range list {
				views = append(views, webModels.AlertView{Alert: list[i], Text: deps.Localizer.Localize(ctx, &list[i], lang)})
			}
			c.JSON(http.StatusOK, views)
		})

		alerts.POST("/:id/ack", setStatus(deps, log, models.AlertAcked))
		alerts.POST("/:id/resolve", setStatus(deps, log, models.AlertResolved))
	}
}

func setStatus(deps Dependencies, log *zap.Logger, status models.AlertStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
			return
		}
		err = deps.Alerts.SetAlertStatus(c.Request.Context(), id, status, deps.now())
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		if err != nil {
			log.Error("alert status update failed", zap.Int64("alert_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert"})
			return
		}
		log.Info("alert status changed", zap.Int64("alert_id", id), zap.String("status", string(status)),
			zap.String("operator", c.GetString("operator")))
		c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
	}
}
