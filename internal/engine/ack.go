package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"coldchain/internal/models"
	"coldchain/internal/payload"
)

// AckStore is the persistence the acknowledgment handler needs
type AckStore interface {
	UpdateCommandResult(ctx context.Context, cmdID string, result models.CommandResult) (bool, error)
	ApplyAck(ctx context.Context, deviceID string, u models.AckUpdate) error
	SaveAck(ctx context.Context, deviceID, message string, at time.Time) error
}

// AckHandler correlates acknowledgments with commands and folds the reported
// settings into device state
type AckHandler struct {
	store AckStore
	now   func() time.Time
	log   *zap.Logger
}

func NewAckHandler(store AckStore, log *zap.Logger) *AckHandler {
	return &AckHandler{store: store, now: time.Now, log: log.Named("ack")}
}

// Handle processes one raw ack payload from deviceID. Device state is updated
// whether or not a matching command exists.
func (h *AckHandler) Handle(ctx context.Context, deviceID, text string) error {
	ack, err := payload.ParseAck(text)
	if err != nil {
		return err
	}
	now := h.now().UTC()
	fields := []zap.Field{zap.String("device_id", deviceID), zap.String("cmd_id", ack.CmdID), zap.String("status", ack.Status)}

	if ack.CmdID != "" {
		result := models.CommandAckError
		if ack.OK() {
			result = models.CommandAckOK
		}
		found, err := h.store.UpdateCommandResult(ctx, ack.CmdID, result)
		switch {
		case err != nil:
			h.log.Error("command result update failed", append(fields, zap.Error(err))...)
		case !found:
			h.log.Debug("ack for unknown command", fields...)
		}
	}

	update := models.AckUpdate{CmdID: ack.CmdID, AckAt: now}
	if ack.Applied != nil {
		if ack.Applied.Peltier != nil {
			s := settingOf(*ack.Applied.Peltier)
			update.Setting = &s
		}
		update.Fan = ack.Applied.Fan
		update.TargetTemp = ack.Applied.TargetTemp
	}
	if err := h.store.ApplyAck(ctx, deviceID, update); err != nil {
		return err
	}

	if err := h.store.SaveAck(ctx, deviceID, text, now); err != nil {
		h.log.Warn("ack audit failed", append(fields, zap.Error(err))...)
	}
	h.log.Info("ack received", fields...)
	return nil
}

func settingOf(v string) models.Setting {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "ON":
		return models.SettingOn
	case "OFF":
		return models.SettingOff
	}
	return models.SettingUnknown
}
