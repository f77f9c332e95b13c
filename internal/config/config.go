package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/rainfall-alerts/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// MQTT transport.
	MQTTEnabled  bool
	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	// Storage paths.
	SnapshotPath      string
	SubscriptionsPath string

	// Alert rules.
	Thresholds    domain.Thresholds
	AlertCooldown time.Duration
	AlertWorkers  int

	// Telegram chat-bot channel. Empty token or chat id disables the channel.
	TelegramToken   string
	TelegramChatID  string
	TelegramTimeout time.Duration

	// Web push channel. Empty keys disable the channel.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	PushTimeout     time.Duration

	// Optional Redis snapshot mirror.
	RedisAddr string

	// Optional Kafka alert event stream.
	KafkaBrokers    []string
	KafkaAlertTopic string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// External forecast model server.
	ForecastURL     string
	ForecastTimeout time.Duration
}

// TelegramEnabled reports whether both Telegram credentials are set.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

// PushEnabled reports whether both VAPID keys are set.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// LoadDotEnv loads variables from a .env file if one exists. Variables already
// set in the environment take precedence.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	thresholds, err := parseThresholds()
	if err != nil {
		return nil, err
	}

	cooldownSec, err := parseNonNegativeInt("ALERT_COOLDOWN_SEC", 600)
	if err != nil {
		return nil, err
	}

	workers, err := parsePositiveInt("ALERT_WORKERS", 16)
	if err != nil {
		return nil, err
	}

	telegramTimeout, err := parseTimeout("TELEGRAM_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	pushTimeout, err := parseTimeout("PUSH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseTimeout("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	forecastTimeout, err := parseTimeout("FORECAST_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	var kafkaBrokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		kafkaBrokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MQTTEnabled:  sharedcfg.EnvOrDefault("MQTT_ENABLED", "true") != "false",
		MQTTBroker:   sharedcfg.EnvOrDefault("MQTT_BROKER", "tcp://test.mosquitto.org:1883"),
		MQTTClientID: sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "rainfall-alerts"),
		MQTTTopic:    sharedcfg.EnvOrDefault("MQTT_TOPIC", "rainfall/+/data"),

		SnapshotPath:      sharedcfg.EnvOrDefault("SNAPSHOT_PATH", "data/realtime_pdn_data.json"),
		SubscriptionsPath: sharedcfg.EnvOrDefault("SUBSCRIPTIONS_PATH", "data/pwa_subscriptions.json"),

		Thresholds:    thresholds,
		AlertCooldown: time.Duration(cooldownSec) * time.Second,
		AlertWorkers:  workers,

		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:  os.Getenv("TELEGRAM_CHAT_ID"),
		TelegramTimeout: telegramTimeout,

		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    sharedcfg.EnvOrDefault("VAPID_SUBJECT", "mailto:alerts@example.com"),
		PushTimeout:     pushTimeout,

		RedisAddr: os.Getenv("REDIS_ADDR"),

		KafkaBrokers:    kafkaBrokers,
		KafkaAlertTopic: sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "rainfall-alerts"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),

		ForecastURL:     os.Getenv("FORECAST_URL"),
		ForecastTimeout: forecastTimeout,
	}

	if cfg.MQTTEnabled && cfg.MQTTBroker == "" {
		return nil, errors.New("MQTT_BROKER is required when MQTT_ENABLED is not false")
	}
	if cfg.SnapshotPath == "" {
		return nil, errors.New("SNAPSHOT_PATH is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaAlertTopic == "" {
		return nil, errors.New("KAFKA_ALERT_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parseThresholds() (domain.Thresholds, error) {
	def := domain.DefaultThresholds()

	moderate, err := parseFloat("ALERT_THRESHOLD_MM", def.Moderate)
	if err != nil {
		return domain.Thresholds{}, err
	}
	heavy, err := parseFloat("ALERT_HEAVY_MM", def.Heavy)
	if err != nil {
		return domain.Thresholds{}, err
	}
	severe, err := parseFloat("ALERT_SEVERE_MM", def.Severe)
	if err != nil {
		return domain.Thresholds{}, err
	}

	t := domain.Thresholds{Moderate: moderate, Heavy: heavy, Severe: severe}
	if err := t.Validate(); err != nil {
		return domain.Thresholds{}, fmt.Errorf("invalid ALERT_THRESHOLD_MM/ALERT_HEAVY_MM/ALERT_SEVERE_MM: %w", err)
	}
	return t, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", key)
	}
	return n, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseTimeout(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
