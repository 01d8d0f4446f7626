package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coldchain/internal/config"
	"coldchain/internal/models"
	"coldchain/internal/services"
	"coldchain/internal/utils"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeAlerter struct {
	created []services.NewAlert
	err     error
}

func (f *fakeAlerter) Create(_ context.Context, req services.NewAlert) (*models.Alert, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	return &models.Alert{ID: int64(len(f.created)), DeviceID: req.DeviceID}, nil
}

type fakeStore struct {
	seen      []models.LastSeen
	snaps     map[string][]models.Snapshot
	overdue   []models.Alert
	escalated map[int64]bool
}

func (f *fakeStore) LastSeenAll(context.Context) ([]models.LastSeen, error) {
	return f.seen, nil
}

func (f *fakeStore) DevicesWithSnapshots(_ context.Context, minCount int) ([]string, error) {
	var ids []string
	for id, s := range f.snaps {
		if len(s) >= minCount {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) RecentSnapshots(_ context.Context, deviceID string, n int) ([]models.Snapshot, error) {
	s := f.snaps[deviceID]
	if len(s) > n {
		s = s[:n]
	}
	return s, nil
}

func (f *fakeStore) EscalationCandidates(context.Context, time.Time) ([]models.Alert, error) {
	var out []models.Alert
	for _, a := range f.overdue {
		if !f.escalated[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkEscalated(_ context.Context, id int64, _ time.Time) (bool, error) {
	if f.escalated[id] {
		return false, nil
	}
	f.escalated[id] = true
	return true, nil
}

func TestDeadDeviceSweepDebounces(t *testing.T) {
	clk := &clock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	store := &fakeStore{seen: []models.LastSeen{
		{DeviceID: "BOX1", At: clk.now().Add(-200 * time.Second)},
		{DeviceID: "BOX2", At: clk.now().Add(-10 * time.Second)},
	}}
	alerts := &fakeAlerter{}
	sweep := NewDeadDeviceSweep(store, alerts, 180*time.Second, 180*time.Second, utils.NewDebouncer(clk.now), zap.NewNop())
	sweep.now = clk.now

	assert.Equal(t, 1, sweep.Run(context.Background()))
	require.Len(t, alerts.created, 1)
	assert.Equal(t, config.KindDeadBox, alerts.created[0].TemplateCode)
	assert.Equal(t, "BOX1", alerts.created[0].DeviceID)
	assert.Equal(t, map[string]string{"boxId": "BOX1", "minutes": "3"}, alerts.created[0].Params)

	clk.advance(30 * time.Second)
	assert.Equal(t, 0, sweep.Run(context.Background()))
	assert.Len(t, alerts.created, 1)

	clk.advance(151 * time.Second)
	assert.Equal(t, 2, sweep.Run(context.Background()), "BOX1 again after the window and BOX2 now silent too")
}

func TestDeadDeviceSweepRetriesAfterFailedAlert(t *testing.T) {
	clk := &clock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	store := &fakeStore{seen: []models.LastSeen{{DeviceID: "BOX1", At: clk.now().Add(-time.Hour)}}}
	alerts := &fakeAlerter{err: errors.New("no template")}
	sweep := NewDeadDeviceSweep(store, alerts, 180*time.Second, 180*time.Second, utils.NewDebouncer(clk.now), zap.NewNop())
	sweep.now = clk.now

	assert.Equal(t, 0, sweep.Run(context.Background()))

	alerts.err = nil
	clk.advance(60 * time.Second)
	assert.Equal(t, 1, sweep.Run(context.Background()), "failed insert must not hold the window")
	require.Len(t, alerts.created, 1)

	clk.advance(60 * time.Second)
	assert.Equal(t, 0, sweep.Run(context.Background()))
}

func gpsSnap(lat, lon any) models.Snapshot {
	body := map[string]any{"temp": 4.0}
	if lat != nil || lon != nil {
		gps := map[string]any{}
		if lat != nil {
			gps["lat"] = lat
		}
		if lon != nil {
			gps["lon"] = lon
		}
		body["gps"] = gps
	}
	data, _ := json.Marshal(body)
	return models.Snapshot{Payload: data}
}

func repeat(s models.Snapshot, n int) []models.Snapshot {
	out := make([]models.Snapshot, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestFrozen(t *testing.T) {
	still := repeat(gpsSnap(18.52, 73.85), 5)
	assert.True(t, Frozen(still, 5))

	jitter := repeat(gpsSnap(18.52, 73.85), 4)
	jitter = append(jitter, gpsSnap(18.5200000005, 73.85))
	assert.True(t, Frozen(jitter, 5), "within epsilon")

	moved := repeat(gpsSnap(18.52, 73.85), 4)
	moved = append(moved, gpsSnap(18.53, 73.85))
	assert.False(t, Frozen(moved, 5))

	partial := repeat(gpsSnap(18.52, 73.85), 4)
	partial = append(partial, gpsSnap(18.52, nil))
	assert.False(t, Frozen(partial, 5), "partial fix breaks the judgment")

	missing := repeat(gpsSnap(18.52, 73.85), 4)
	missing = append(missing, gpsSnap(nil, nil))
	assert.False(t, Frozen(missing, 5))

	assert.False(t, Frozen(still[:4], 5), "not enough samples")
}

func TestGPSFreezeSweep(t *testing.T) {
	clk := &clock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	store := &fakeStore{snaps: map[string][]models.Snapshot{
		"BOX1": repeat(gpsSnap(18.52, 73.85), 6),
		"BOX2": append(repeat(gpsSnap(18.52, 73.85), 4), gpsSnap(19.0, 73.85)),
		"BOX3": repeat(gpsSnap(18.52, 73.85), 3),
	}}
	alerts := &fakeAlerter{}
	sweep := NewGPSFreezeSweep(store, alerts, 5, 300*time.Second, utils.NewDebouncer(clk.now), zap.NewNop())

	assert.Equal(t, 1, sweep.Run(context.Background()))
	require.Len(t, alerts.created, 1)
	assert.Equal(t, config.KindGPSFrozen, alerts.created[0].TemplateCode)
	assert.Equal(t, "BOX1", alerts.created[0].DeviceID)
	assert.Equal(t, "5", alerts.created[0].Params["samples"])

	clk.advance(60 * time.Second)
	assert.Equal(t, 0, sweep.Run(context.Background()))

	clk.advance(241 * time.Second)
	assert.Equal(t, 1, sweep.Run(context.Background()))
}

func TestGPSFreezeSweepRetriesAfterFailedAlert(t *testing.T) {
	clk := &clock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	store := &fakeStore{snaps: map[string][]models.Snapshot{"BOX1": repeat(gpsSnap(18.52, 73.85), 5)}}
	alerts := &fakeAlerter{err: errors.New("store down")}
	sweep := NewGPSFreezeSweep(store, alerts, 5, 300*time.Second, utils.NewDebouncer(clk.now), zap.NewNop())

	assert.Equal(t, 0, sweep.Run(context.Background()))

	alerts.err = nil
	clk.advance(60 * time.Second)
	assert.Equal(t, 1, sweep.Run(context.Background()))
}

type fakeNotifier struct {
	notified []*models.Alert
}

func (f *fakeNotifier) NotifyAlert(_ context.Context, a *models.Alert) error {
	f.notified = append(f.notified, a)
	return nil
}

func TestEscalationSweep(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	deadline := now.Add(-time.Minute)
	store := &fakeStore{
		overdue: []models.Alert{
			{ID: 1, Status: models.AlertOpen, Deadline: &deadline, DeviceID: "BOX1"},
			{ID: 2, Status: models.AlertAcked, Deadline: &deadline, DeviceID: "BOX2"},
		},
		escalated: map[int64]bool{},
	}
	n := &fakeNotifier{}
	sweep := NewEscalationSweep(store, n, zap.NewNop())
	sweep.now = func() time.Time { return now }

	assert.Equal(t, 2, sweep.Run(context.Background()))
	require.Len(t, n.notified, 2)
	for _, a := range n.notified {
		assert.True(t, a.Escalated)
		assert.Equal(t, models.AlertEscalated, a.Status)
		require.NotNil(t, a.EscalationMarkedAt)
		assert.Equal(t, now, *a.EscalationMarkedAt)
	}

	assert.Equal(t, 0, sweep.Run(context.Background()))
	assert.Len(t, n.notified, 2)
}

func TestSchedulerRunsSweeps(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	var mu sync.Mutex
	runs := 0
	require.NoError(t, s.AddSweep("tick", time.Second, func(ctx context.Context) {
		mu.Lock()
		runs++
		mu.Unlock()
	}))
	assert.Error(t, s.AddSweep("bad", 0, func(context.Context) {}))
	assert.Equal(t, 1, s.JobCount())

	s.Start()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs > 0
	}, 3*time.Second, 50*time.Millisecond)
	s.Stop()

	require.NoError(t, s.AddSweep("tick", time.Minute, func(context.Context) {}))
	assert.Equal(t, 1, s.JobCount(), "re-adding a name replaces the sweep")
	s.RemoveSweep("tick")
	assert.Equal(t, 0, s.JobCount())
}
