package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceCachePutGet(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewDeviceCache(NewRedisClient(mr.Addr()), time.Minute)
	ctx := context.Background()

	got, err := cache.Get(ctx, "BOX1")
	require.NoError(t, err)
	assert.Nil(t, got)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, cache.Put(ctx, Reading{DeviceID: "BOX1", Payload: json.RawMessage(`{"temp":4.5}`), ReceivedAt: at}))

	got, err = cache.Get(ctx, "BOX1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"temp":4.5}`, string(got.Payload))
	assert.True(t, at.Equal(got.ReceivedAt))
	assert.True(t, mr.Exists("device:BOX1"))
}

func TestDeviceCacheExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewDeviceCache(NewRedisClient(mr.Addr()), time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, Reading{DeviceID: "BOX2", Payload: json.RawMessage(`{}`)}))
	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, "BOX2")
	require.NoError(t, err)
	assert.Nil(t, got)
}
