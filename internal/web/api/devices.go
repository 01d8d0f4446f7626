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
	"coldchain/internal/services"
	"coldchain/internal/web/middleware"
	webModels "coldchain/internal/web/models"
)

func RegisterDeviceRoutes(r *gin.Engine, middleware *middleware.MiddlewareManager, deps Dependencies, log *zap.Logger) {
	devices := r.Group("/devices")
	devices.Use(middleware.RequireAuth())
	{
		devices.POST("/:id/commands", func(c *gin.Context) {
			var req webModels.CommandRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			cmdReq := services.CommandRequest{Peltier: req.Peltier, Fan: req.Fan, TargetTemp: req.TargetTemp}
			if cmdReq.Empty() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "one of peltier, fan or targetTemp is required"})
				return
			}
			cmd, err := deps.Commander.SendCommand(c.Request.Context(), c.Param("id"), cmdReq)
			if err != nil {
				log.Warn("command publish failed", zap.String("device_id", c.Param("id")), zap.Error(err))
				c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to publish command"})
				return
			}
			c.JSON(http.StatusAccepted, cmd)
		})

		devices.GET("/:id/state", func(c *gin.Context) {
			ctx := c.Request.Context()
			id := c.Param("id")
			view := webModels.DeviceStateView{DeviceID: id, Setting: models.SettingUnknown}

			state, err := deps.Devices.GetDeviceState(ctx, id)
			if err != nil && !errors.Is(err, db.ErrNotFound) {
				log.Error("device state query failed", zap.String("device_id", id), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch device state"})
				return
			}
			view.State = state

			last, err := deps.Devices.LatestTransition(ctx, id)
			if err != nil {
				log.Error("transition query failed", zap.String("device_id", id), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch device state"})
				return
			}
			if last != nil {
				view.Setting = last.Setting()
			}

			if deps.Cache != nil {
				reading, err := deps.Cache.Get(ctx, id)
				if err != nil {
					log.Warn("cache read failed", zap.String("device_id", id), zap.Error(err))
				} else if reading != nil {
					view.LastTelemetry = reading.Payload
					at := reading.ReceivedAt
					view.LastSeenAt = &at
				}
			}

			if state == nil && last == nil && view.LastTelemetry == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Unknown device"})
				return
			}
			c.JSON(http.StatusOK, view)
		})

		devices.GET("/:id/events", func(c *gin.Context) {
			events, err := deps.Devices.ListEvents(c.Request.Context(), c.Param("id"), c.Query("type"), queryLimit(c, 50, 500))
			if err != nil {
				log.Error("events query failed", zap.String("device_id", c.Param("id")), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch events"})
				return
			}
			if events == nil {
				events = []models.Event{}
			}
			c.JSON(http.StatusOK, events)
		})

		devices.GET("/:id/acks", func(c *gin.Context) {
			acks, err := deps.Devices.ListAcks(c.Request.Context(), c.Param("id"), queryLimit(c, 50, 500))
			if err != nil {
				log.Error("acks query failed", zap.String("device_id", c.Param("id")), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch acks"})
				return
			}
			if acks == nil {
				acks = []models.AckRecord{}
			}
			c.JSON(http.StatusOK, acks)
		})

		devices.GET("/:id/thresholds", func(c *gin.Context) {
			th, err := deps.Devices.GetThreshold(c.Request.Context(), c.Param("id"))
			if errors.Is(err, db.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "No threshold configured"})
				return
			}
			if err != nil {
				log.Error("threshold query failed", zap.String("device_id", c.Param("id")), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch threshold"})
				return
			}
			c.JSON(http.StatusOK, th)
		})

		devices.PUT("/:id/thresholds", func(c *gin.Context) {
			var req webModels.ThresholdRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "tempOn, tempOff and moistureMin are required"})
				return
			}
			th := models.Threshold{
				DeviceID:    c.Param("id"),
				TempOn:      *req.TempOn,
				TempOff:     *req.TempOff,
				MoistureMin: *req.MoistureMin,
				UpdatedAt:   deps.now(),
			}
			if err := deps.Devices.UpsertThreshold(c.Request.Context(), th); err != nil {
				log.Error("threshold upsert failed", zap.String("device_id", th.DeviceID), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store threshold"})
				return
			}
			if !th.Valid() {
				log.Warn("threshold stored with tempOn <= tempOff, actuation will be skipped", zap.String("device_id", th.DeviceID))
			}
			c.JSON(http.StatusOK, th)
		})
	}

	boxes := r.Group("/boxes")
	boxes.Use(middleware.RequireAuth())
	{
		// Manual override. The rule state machine does not see it.
		boxes.POST("/:id/peltier", func(c *gin.Context) {
			var req webModels.PeltierRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "power must be ON or OFF"})
				return
			}
			on := strings.EqualFold(req.Power, "ON")
			deps.Commander.SetPeltier(c.Param("id"), on)
			log.Info("manual peltier override", zap.String("device_id", c.Param("id")), zap.Bool("on", on),
				zap.String("operator", c.GetString("operator")))
			c.JSON(http.StatusAccepted, gin.H{"device_id": c.Param("id"), "power": strings.ToUpper(req.Power)})
		})
	}
}

func queryLimit(c *gin.Context, def, ceiling int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > ceiling {
		return ceiling
	}
	return n
}
