package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"coldchain/auth"
	"coldchain/internal/config"
	"coldchain/internal/db"
	"coldchain/internal/engine"
	"coldchain/internal/eventbus"
	"coldchain/internal/mqtt"
	"coldchain/internal/notify"
	"coldchain/internal/redis"
	"coldchain/internal/scheduler"
	"coldchain/internal/services"
	"coldchain/internal/taskqueue"
	"coldchain/internal/utils"
	"coldchain/internal/web"
	"coldchain/internal/web/api"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogging(cfg.Log.Level, cfg.Log.Format, cfg.App.ServiceName)
	if err != nil {
		log.Fatalf("Failed to init logging: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to DB", zap.Error(err))
	}
	defer dbConn.Close()
	if err := dbConn.Init(ctx); err != nil {
		logger.Fatal("failed to init schema", zap.Error(err))
	}

	redisClient := redis.NewRedisClient(cfg.Redis.Addr)
	defer redisClient.Close()
	cache := redis.NewDeviceCache(redisClient, cfg.Redis.CacheTTL)

	queue := taskqueue.NewQueue(cfg.Redis.Addr, logger)
	defer queue.Close()
	worker := taskqueue.NewWorker(cfg.Redis.Addr, 10, notify.New(cfg.Notify.WebhookURL, cfg.Notify.Timeout, logger), logger)
	if err := worker.Start(); err != nil {
		logger.Fatal("failed to start workers", zap.Error(err))
	}

	var sink engine.EventSink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink := eventbus.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, logger)
		defer kafkaSink.Close()
		sink = kafkaSink
	}

	var eng *engine.Engine
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = mqtt.ClientID(cfg.App.ServiceName)
	}
	mqttClient := mqtt.NewClient(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       clientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		QoS:            cfg.MQTT.QoS,
		Topics:         []string{cfg.MQTT.TelemetryTopic, cfg.MQTT.AckTopic},
		BackoffInitial: cfg.MQTT.BackoffInitial,
		BackoffMax:     cfg.MQTT.BackoffMax,
	}, func(topic string, payload []byte) {
		eng.HandleMessage(topic, payload)
	}, logger)

	alerts := services.NewAlertService(dbConn, queue, cfg.Alerts.DefaultLang, cfg.Alerts.AckDeadline, logger)
	actuator := services.NewActuatorService(mqttClient, dbConn, cfg.MQTT.CommandTopic, logger)
	rules := engine.NewRuleEngine(dbConn, actuator, sink, cfg.Rules.Cooldown, logger)

	debounce := utils.NewDebouncer(time.Now)
	pipeline := engine.NewPipeline(dbConn, alerts, rules, cache, debounce, cfg.Alerts.Debounce, cfg.Safety, logger)
	eng = engine.NewEngine(cfg.MQTT.TelemetryTopic, cfg.MQTT.AckTopic, pipeline,
		engine.NewAckHandler(dbConn, logger), utils.NewKeyedMutex(), logger)

	mqttClient.Start(ctx)

	sched := scheduler.NewScheduler(logger)
	deadSweep := scheduler.NewDeadDeviceSweep(dbConn, alerts, cfg.Sweeps.DeadDeviceAfter,
		cfg.Alerts.Debounce[config.KindDeadBox], debounce, logger)
	gpsSweep := scheduler.NewGPSFreezeSweep(dbConn, alerts, cfg.Sweeps.GPSFreezeSamples,
		cfg.Alerts.Debounce[config.KindGPSFrozen], debounce, logger)
	escalation := scheduler.NewEscalationSweep(dbConn, queue, logger)
	sweeps := []struct {
		name  string
		every time.Duration
		run   func(context.Context) int
	}{
		{"dead_device", cfg.Sweeps.DeadDeviceEvery, deadSweep.Run},
		{"gps_freeze", cfg.Sweeps.GPSFreezeEvery, gpsSweep.Run},
		{"escalation", cfg.Sweeps.EscalationEvery, escalation.Run},
	}
	for _, s := range sweeps {
		run := s.run
		if err := sched.AddSweep(s.name, s.every, func(ctx context.Context) { run(ctx) }); err != nil {
			logger.Fatal("failed to schedule sweep", zap.Error(err))
		}
	}
	sched.Start()

	authModule := auth.NewAuthModule(cfg.JWT.Secret, cfg.JWT.APIKey, cfg.JWT.TokenTTL)
	webServer := web.NewWebServer(fmt.Sprintf(":%d", cfg.App.Port), api.Dependencies{
		Commander: actuator,
		Devices:   dbConn,
		Cache:     cache,
		Alerts:    dbConn,
		Localizer: alerts,
		DB:        dbConn,
	}, authModule, logger)
	go func() {
		if err := webServer.Start(); err != nil {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	mqttClient.Close()
	sched.Stop()
	worker.Stop()
	logger.Info("shutdown complete")
}
