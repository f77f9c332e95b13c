// Command rainwatch ingests rainfall sensor readings over MQTT and HTTP, keeps
// the latest reading per sensor on disk, and sends threshold alerts.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/rainfall-alerts/internal/adapter/forecast"
	httpadapter "github.com/couchcryptid/rainfall-alerts/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/rainfall-alerts/internal/adapter/kafka"
	"github.com/couchcryptid/rainfall-alerts/internal/adapter/mapbox"
	mqttadapter "github.com/couchcryptid/rainfall-alerts/internal/adapter/mqtt"
	redisadapter "github.com/couchcryptid/rainfall-alerts/internal/adapter/redis"
	"github.com/couchcryptid/rainfall-alerts/internal/adapter/telegram"
	"github.com/couchcryptid/rainfall-alerts/internal/adapter/webpush"
	"github.com/couchcryptid/rainfall-alerts/internal/alert"
	"github.com/couchcryptid/rainfall-alerts/internal/config"
	"github.com/couchcryptid/rainfall-alerts/internal/ingest"
	"github.com/couchcryptid/rainfall-alerts/internal/observability"
	"github.com/couchcryptid/rainfall-alerts/internal/store"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence sinks: the snapshot file always, Redis when configured.
	snapshots := store.NewSnapshotStore(cfg.SnapshotPath)
	persisters := []ingest.Persister{snapshots}
	readiness := httpadapter.Readiness{snapshots}

	var mirror *redisadapter.Mirror
	if cfg.RedisAddr != "" {
		mirror, err = redisadapter.NewMirror(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("redis mirror unavailable", "error", err)
			os.Exit(1)
		}
		persisters = append(persisters, mirror)
		readiness = append(readiness, mirror)
		logger.Info("redis snapshot mirror enabled", "addr", cfg.RedisAddr)
	}

	// Notification channels are always registered; a channel without
	// credentials reports missing_credentials on each send.
	subscriptions := webpush.NewSubscriptionStore(cfg.SubscriptionsPath)
	push := webpush.NewChannel(subscriptions, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject, cfg.PushTimeout, logger, metrics)
	channels := []alert.Channel{
		telegram.NewClient(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramTimeout, logger),
		push,
	}
	if !cfg.TelegramEnabled() {
		logger.Warn("telegram channel has no credentials")
	}
	if !cfg.PushEnabled() {
		logger.Warn("web push channel has no VAPID keys")
	}

	opts := []alert.Option{}
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder, err := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create geocoder", "error", err)
			os.Exit(1)
		}
		opts = append(opts, alert.WithGeocoder(geocoder, cfg.MapboxTimeout))
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var publisher *kafkaadapter.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaAlertTopic, logger)
		opts = append(opts, alert.WithEventPublisher(publisher))
		logger.Info("alert event stream enabled", "topic", cfg.KafkaAlertTopic)
	}

	evaluator := alert.NewEvaluator(cfg.Thresholds, cfg.AlertCooldown, channels, logger, metrics, opts...)
	coord := ingest.New(persisters, evaluator, logger, metrics, ingest.WithWorkers(cfg.AlertWorkers))

	// Warm the map from the last committed snapshot so a restart does not
	// blank /sensors/latest.
	if seed, err := snapshots.Load(); err != nil {
		logger.Warn("could not load previous snapshot", "path", cfg.SnapshotPath, "error", err)
	} else {
		coord.Seed(seed)
		logger.Info("state warmed from snapshot", "sensors", len(seed))
	}

	var listener *mqttadapter.Listener
	if cfg.MQTTEnabled {
		listener = mqttadapter.NewListener(mqttadapter.Config{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
		}, coord, logger, metrics)
		readiness = append(readiness, listener)
	}

	handlers := httpadapter.Handlers{
		State:         coord,
		Subscriptions: subscriptions,
		Push:          push,
	}
	if cfg.ForecastURL != "" {
		handlers.Forecast = forecast.NewClient(cfg.ForecastURL, cfg.ForecastTimeout)
	}

	var ready sharedobs.ReadinessChecker = readiness
	srv := httpadapter.NewServer(cfg.HTTPAddr, handlers, ready, logger, metrics)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	if listener != nil {
		listener.Start()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if listener != nil {
		listener.Stop()
	}
	if err := coord.Close(shutdownCtx); err != nil {
		logger.Error("coordinator drain error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if mirror != nil {
		if err := mirror.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
