package scheduler

import (
	"context"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"coldchain/internal/config"
	"coldchain/internal/models"
	"coldchain/internal/payload"
	"coldchain/internal/services"
	"coldchain/internal/utils"
)

const gpsEpsilon = 1e-6

// SnapshotStore serves the readings the GPS freeze check looks at
type SnapshotStore interface {
	DevicesWithSnapshots(ctx context.Context, minCount int) ([]string, error)
	RecentSnapshots(ctx context.Context, deviceID string, n int) ([]models.Snapshot, error)
}

// GPSFreezeSweep raises GPS_FROZEN for devices whose last fixes do not move
type GPSFreezeSweep struct {
	store    SnapshotStore
	alerts   Alerter
	samples  int
	window   time.Duration
	debounce *utils.Debouncer
	log      *zap.Logger
}

func NewGPSFreezeSweep(store SnapshotStore, alerts Alerter, samples int, window time.Duration, debounce *utils.Debouncer, log *zap.Logger) *GPSFreezeSweep {
	if samples < 2 {
		samples = 2
	}
	return &GPSFreezeSweep{
		store:    store,
		alerts:   alerts,
		samples:  samples,
		window:   window,
		debounce: debounce,
		log:      log.Named("gps_freeze"),
	}
}

// Run checks every device with enough readings and returns the number of
// alerts raised
func (s *GPSFreezeSweep) Run(ctx context.Context) int {
	devices, err := s.store.DevicesWithSnapshots(ctx, s.samples)
	if err != nil {
		s.log.Error("device query failed", zap.Error(err))
		return 0
	}

	raised := 0
	for _, deviceID := range devices {
		snaps, err := s.store.RecentSnapshots(ctx, deviceID, s.samples)
		if err != nil {
			s.log.Warn("snapshot query failed", zap.String("device_id", deviceID), zap.Error(err))
			continue
		}
		if !Frozen(snaps, s.samples) {
			continue
		}
		key := utils.DebounceKey(deviceID, config.KindGPSFrozen)
		if !s.debounce.Allow(key, s.window) {
			continue
		}
		_, err = s.alerts.Create(ctx, services.NewAlert{
			TemplateCode: config.KindGPSFrozen,
			DeviceID:     deviceID,
			Params: map[string]string{
				"boxId":   deviceID,
				"samples": strconv.Itoa(s.samples),
			},
		})
		if err != nil {
			s.log.Error("gps frozen alert failed", zap.String("device_id", deviceID), zap.Error(err))
			s.debounce.Forget(key)
			continue
		}
		s.log.Warn("gps frozen", zap.String("device_id", deviceID))
		raised++
	}
	return raised
}

// Frozen reports whether the first n snapshots all carry a complete fix
// equal to the first one within epsilon. A missing or partial fix means not
// frozen.
func Frozen(snaps []models.Snapshot, n int) bool {
	if len(snaps) < n || n == 0 {
		return false
	}
	var first *payload.GPS
	for _, snap := range snaps[:n] {
		g := payload.GPSFromSnapshot(snap.Payload)
		if !g.Complete() {
			return false
		}
		if first == nil {
			first = g
			continue
		}
		if math.Abs(*g.Lat-*first.Lat) > gpsEpsilon || math.Abs(*g.Lon-*first.Lon) > gpsEpsilon {
			return false
		}
	}
	return true
}
