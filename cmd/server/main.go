package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"aqua-backend/internal/aggregator"
	"aqua-backend/internal/api"
	"aqua-backend/internal/broker"
	"aqua-backend/internal/cache"
	"aqua-backend/internal/compat"
	"aqua-backend/internal/database"
	"aqua-backend/internal/feeding"
	"aqua-backend/internal/mqtt"
	"aqua-backend/internal/recommend"
	"aqua-backend/internal/services"
	"aqua-backend/internal/websocket"
	"aqua-backend/pkg/config"
	"aqua-backend/pkg/logging"
)

func main() {
	cfg := config.Load()

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting smart aquarium backend")

	// === Embedded broker (local runs only) ===
	if cfg.EmbeddedBrokerAddr != "" {
		b, err := broker.New(cfg.EmbeddedBrokerAddr, logger)
		if err != nil {
			logger.Fatal("failed to create embedded broker", zap.Error(err))
		}
		if err := b.Start(); err != nil {
			logger.Fatal("failed to start embedded broker", zap.Error(err))
		}
		defer func() { _ = b.Close() }()
		cfg.MQTTBroker = b.URL()
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === Telemetry state ===
	topics := aggregator.NewTopics(
		cfg.TopicCombined,
		cfg.TopicTemperature,
		cfg.TopicPH,
		cfg.TopicTDS,
		cfg.TopicTurbidity,
	)
	normalizer := aggregator.NewNormalizer(topics, cfg.MaxHistoryLength, logger)

	adapter := mqtt.NewAdapter(mqtt.ClientConfigFrom(cfg), topics.All(), mqtt.NewPahoClient, logger)
	hub := websocket.NewHub(normalizer.Snapshot, logger)
	adapter.OnStateChange(hub.BroadcastStatus)

	telemetry := services.NewTelemetryService(normalizer, adapter.Inbox(), logger, hub)

	// === Optional sinks ===
	var archive api.Archive
	var recorders []feeding.Option
	if cfg.ClickHouseEnabled {
		db, err := database.NewClickHouseDB(ctx, database.Config{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		}, logger)
		if err != nil {
			logger.Fatal("failed to initialize ClickHouse", zap.Error(err))
		}
		defer func() { _ = db.Close() }()

		telemetry.AddSink(db)
		recorders = append(recorders, feeding.WithRecorder(db))
		archive = db
	}

	if cfg.RedisEnabled {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("failed to initialize Redis", zap.Error(err))
		}
		store := cache.NewSnapshotStore(client, cfg.RedisTTL, logger)
		defer func() { _ = store.Close() }()

		if snap, ok, err := store.LoadSnapshot(ctx); err != nil {
			logger.Warn("failed to load cached snapshot", zap.Error(err))
		} else if ok && normalizer.Restore(snap) {
			logger.Info("restored snapshot from cache", zap.Time("updated_at", snap.UpdatedAt))
		}
		telemetry.AddSink(store)
	}

	// === Feeding ===
	publisher := mqtt.NewPublisher(adapter, cfg.TopicCommand, logger)
	scheduler := feeding.NewScheduler(publisher, logger,
		append(recorders, feeding.WithInterval(cfg.FeedCheckInterval))...)
	scheduler.OnFeed(hub.BroadcastFeed)

	// === Fish services ===
	catalog, err := compat.LoadCatalog(cfg.FishCatalogPath)
	if err != nil {
		logger.Fatal("failed to load fish catalog", zap.Error(err))
	}
	water, err := compat.ParseWaterType(cfg.WaterType)
	if err != nil {
		logger.Fatal("invalid water type", zap.Error(err))
	}
	recommender := recommend.NewClient(cfg.RecommendAPIURL, cfg.FishAPIURL, cfg.RecommendTimeout, logger)

	// === Workers ===
	go hub.Run(ctx)
	go telemetry.Start(ctx)
	go scheduler.Start(ctx)

	server := api.NewServer(cfg.HTTPAddr, api.Deps{
		Telemetry:   normalizer,
		Connection:  adapter,
		Commands:    publisher,
		Feeding:     scheduler,
		Catalog:     catalog,
		Water:       compat.NewWaterSetting(water),
		Recommender: recommender,
		Archive:     archive,
		WebSocket:   http.HandlerFunc(hub.ServeWS),

		DefaultTemperature: cfg.DefaultTemperature,
	}, logger)
	server.Start(cancel)

	// paho retries an unreachable broker in the background; only a bad
	// broker URL fails here
	if err := adapter.Connect(mqtt.ConnectOptions{}); err != nil {
		logger.Error("failed to start MQTT connection", zap.Error(err))
	}

	logger.Info("smart aquarium backend is running",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("broker", cfg.MQTTBroker),
		zap.Strings("topics", topics.All()),
		zap.String("command_topic", cfg.TopicCommand),
		zap.Bool("clickhouse", cfg.ClickHouseEnabled),
		zap.Bool("redis", cfg.RedisEnabled),
	)

	// === Wait for interrupt signal or a fatal server error ===
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received, stopping services")
	case <-ctx.Done():
		logger.Info("server stopped, shutting down")
	}

	// === Graceful shutdown ===
	if err := server.Shutdown(); err != nil {
		logger.Warn("http shutdown did not complete cleanly", zap.Error(err))
	}
	adapter.Disconnect()
	cancel()

	logger.Info("shutdown complete")
}
