package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"coldchain/internal/config"
	"coldchain/internal/mqtt"
	"coldchain/internal/payload"
)

func main() {
	boxID := flag.String("box", "BOX1", "box id")
	batch := flag.String("batch", "", "batch code")
	every := flag.Duration("every", 5*time.Second, "telemetry interval")
	temp := flag.Float64("temp", 6, "starting temperature")
	lenient := flag.Bool("lenient", false, "publish unquoted keys and a trailing comma like old firmware")
	frozenGPS := flag.Bool("frozen-gps", false, "report the same gps fix every time")
	flag.Parse()

	fmt.Println("🚚 Cold-chain box simulator")
	fmt.Println("===========================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to init logging: %v", err)
	}

	telemetryTopic := strings.Replace(cfg.MQTT.TelemetryTopic, "+", *boxID, 1)
	ackTopic := strings.Replace(cfg.MQTT.AckTopic, "+", *boxID, 1)
	cmdTopic := fmt.Sprintf(cfg.MQTT.CommandTopic, *boxID)

	sim := &box{id: *boxID, batch: *batch, temp: *temp, lat: 18.5204, lon: 73.8567, frozen: *frozenGPS}

	var client *mqtt.Client
	client = mqtt.NewClient(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       mqtt.ClientID("box-sim-" + *boxID),
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		QoS:            cfg.MQTT.QoS,
		Topics:         []string{cmdTopic},
		BackoffInitial: cfg.MQTT.BackoffInitial,
		BackoffMax:     cfg.MQTT.BackoffMax,
	}, func(topic string, raw []byte) {
		ack := sim.apply(raw)
		fmt.Printf("⬅️  %s %s\n", topic, raw)
		if err := client.Publish(ackTopic, ack); err != nil {
			fmt.Printf("ack publish failed: %v\n", err)
			return
		}
		fmt.Printf("➡️  %s %s\n", ackTopic, ack)
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	client.Start(ctx)
	defer client.Close()

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := sim.telemetry(*lenient)
			if err := client.Publish(telemetryTopic, msg); err != nil {
				fmt.Printf("telemetry publish failed: %v\n", err)
				continue
			}
			fmt.Printf("📡 %s %s\n", telemetryTopic, msg)
		}
	}
}

type box struct {
	mu        sync.Mutex
	id, batch string
	temp      float64
	peltierOn bool
	fan       string
	target    *float64
	lat, lon  float64
	frozen    bool
}

// telemetry advances the simulated climate one step: the cooler pulls the
// temperature down, ambient heat pushes it up
func (b *box) telemetry(lenient bool) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.peltierOn {
		b.temp -= 0.4 + rand.Float64()*0.2
	} else {
		b.temp += 0.3 + rand.Float64()*0.3
	}
	if !b.frozen {
		b.lat += (rand.Float64() - 0.5) * 0.001
		b.lon += (rand.Float64() - 0.5) * 0.001
	}

	if lenient {
		return []byte(fmt.Sprintf("{boxId:%s, temp:%.2f, humidity:%d, weight:12.4, gps:{lat:%.6f, lon:%.6f},}",
			b.id, b.temp, 55+rand.Intn(10), b.lat, b.lon))
	}
	msg := map[string]any{
		"boxId":     b.id,
		"temp":      round2(b.temp),
		"humidity":  55 + rand.Intn(10),
		"weight":    12.4,
		"tamper":    false,
		"gps":       map[string]float64{"lat": b.lat, "lon": b.lon},
		"timestamp": time.Now().UnixMilli(),
	}
	if b.batch != "" {
		msg["batchCode"] = b.batch
	}
	data, _ := json.Marshal(msg)
	return data
}

// apply takes a command payload and returns the ack to send back
func (b *box) apply(raw []byte) []byte {
	obj, err := payload.Decode(string(raw))
	if err != nil {
		data, _ := json.Marshal(map[string]string{"status": "ERROR", "error": "bad command"})
		return data
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	applied := map[string]any{}
	if p, ok := obj["peltier"].(string); ok {
		b.peltierOn = strings.EqualFold(p, "on")
		applied["peltier"] = strings.ToUpper(p)
	}
	if f, ok := obj["fan"].(string); ok {
		b.fan = f
		applied["fan"] = strings.ToUpper(f)
	}
	if n, ok := obj["targetTemp"].(json.Number); ok {
		if v, err := n.Float64(); err == nil {
			b.target = &v
			applied["targetTemp"] = v
		}
	}
	ack := map[string]any{"status": "OK", "applied": applied}
	if id, ok := obj["cmdId"].(string); ok {
		ack["cmdId"] = id
	}
	data, _ := json.Marshal(ack)
	return data
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
