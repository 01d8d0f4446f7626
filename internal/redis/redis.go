package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a Redis client
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// Reading is the latest telemetry of a device as kept in the cache
type Reading struct {
	DeviceID   string          `json:"device_id"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// DeviceCache keeps the latest reading per device under device:<id>
type DeviceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeviceCache(client *redis.Client, ttl time.Duration) *DeviceCache {
	return &DeviceCache{client: client, ttl: ttl}
}

func deviceKey(id string) string {
	return "device:" + id
}

// Put stores the reading, replacing the previous one
func (c *DeviceCache) Put(ctx context.Context, r Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, deviceKey(r.DeviceID), data, c.ttl).Err()
}

// Get returns the cached reading, or nil when there is none
func (c *DeviceCache) Get(ctx context.Context, deviceID string) (*Reading, error) {
	data, err := c.client.Get(ctx, deviceKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
