package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "boxes/+/telemetry", cfg.MQTT.TelemetryTopic)
	assert.Equal(t, "boxes/+/ack", cfg.MQTT.AckTopic)
	assert.Equal(t, "boxes/%s/cmd", cfg.MQTT.CommandTopic)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, 2*time.Second, cfg.MQTT.BackoffInitial)
	assert.Equal(t, 120*time.Second, cfg.MQTT.BackoffMax)
	assert.Equal(t, 60*time.Second, cfg.Rules.Cooldown)
	assert.Equal(t, 180*time.Second, cfg.Sweeps.DeadDeviceAfter)
	assert.Equal(t, 5, cfg.Sweeps.GPSFreezeSamples)
	assert.Equal(t, 30.0, cfg.Safety.TempHigh)
	assert.Equal(t, 10.0, cfg.Safety.TempLow)
	assert.Equal(t, 2.0, cfg.Safety.WeightMin)
	assert.Equal(t, time.Duration(0), cfg.Alerts.AckDeadline)
	assert.Equal(t, DefaultDebounce(), cfg.Alerts.Debounce)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 5069, cfg.App.Port)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker.example:1883")
	t.Setenv("RULE_COOLDOWN", "90s")
	t.Setenv("SAFETY_TEMP_HIGH", "25.5")
	t.Setenv("ALERT_ACK_DEADLINE", "15m")
	t.Setenv("ALERT_DEBOUNCE_WEIGHT_LOW", "2m")
	t.Setenv("ALERT_DEBOUNCE_DEAD_BOX", "10m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "tcp://broker.example:1883", cfg.MQTT.Broker)
	assert.Equal(t, 90*time.Second, cfg.Rules.Cooldown)
	assert.Equal(t, 25.5, cfg.Safety.TempHigh)
	assert.Equal(t, 15*time.Minute, cfg.Alerts.AckDeadline)
	assert.Equal(t, 2*time.Minute, cfg.Alerts.Debounce[KindWeightLow])
	assert.Equal(t, 10*time.Minute, cfg.Alerts.Debounce[KindDeadBox])
	assert.Equal(t, 60*time.Second, cfg.Alerts.Debounce[KindTempMissing])
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}
