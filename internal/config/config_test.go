package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapboxToken = "pk.test-token"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.MQTTEnabled)
	assert.Equal(t, "tcp://test.mosquitto.org:1883", cfg.MQTTBroker)
	assert.Equal(t, "rainfall-alerts", cfg.MQTTClientID)
	assert.Equal(t, "rainfall/+/data", cfg.MQTTTopic)
	assert.Equal(t, "data/realtime_pdn_data.json", cfg.SnapshotPath)
	assert.Equal(t, "data/pwa_subscriptions.json", cfg.SubscriptionsPath)
	assert.InDelta(t, 50.0, cfg.Thresholds.Moderate, 0)
	assert.InDelta(t, 100.0, cfg.Thresholds.Heavy, 0)
	assert.InDelta(t, 150.0, cfg.Thresholds.Severe, 0)
	assert.Equal(t, 600*time.Second, cfg.AlertCooldown)
	assert.Equal(t, 16, cfg.AlertWorkers)
	assert.False(t, cfg.TelegramEnabled())
	assert.Equal(t, 10*time.Second, cfg.TelegramTimeout)
	assert.False(t, cfg.PushEnabled())
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "rainfall-alerts", cfg.KafkaAlertTopic)
	assert.False(t, cfg.MapboxEnabled)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.Empty(t, cfg.ForecastURL)
	assert.Equal(t, 10*time.Second, cfg.ForecastTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_TOPIC", "rain/+/data")
	t.Setenv("SNAPSHOT_PATH", "/tmp/snap.json")
	t.Setenv("ALERT_THRESHOLD_MM", "40")
	t.Setenv("ALERT_HEAVY_MM", "80")
	t.Setenv("ALERT_SEVERE_MM", "120")
	t.Setenv("ALERT_COOLDOWN_SEC", "60")
	t.Setenv("ALERT_WORKERS", "4")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100")
	t.Setenv("VAPID_PUBLIC_KEY", "pub")
	t.Setenv("VAPID_PRIVATE_KEY", "priv")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_ALERT_TOPIC", "alerts")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("FORECAST_URL", "http://model:8000/predict")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
	assert.Equal(t, "rain/+/data", cfg.MQTTTopic)
	assert.Equal(t, "/tmp/snap.json", cfg.SnapshotPath)
	assert.InDelta(t, 40.0, cfg.Thresholds.Moderate, 0)
	assert.InDelta(t, 80.0, cfg.Thresholds.Heavy, 0)
	assert.InDelta(t, 120.0, cfg.Thresholds.Severe, 0)
	assert.Equal(t, time.Minute, cfg.AlertCooldown)
	assert.Equal(t, 4, cfg.AlertWorkers)
	assert.True(t, cfg.TelegramEnabled())
	assert.True(t, cfg.PushEnabled())
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "alerts", cfg.KafkaAlertTopic)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.Equal(t, "http://model:8000/predict", cfg.ForecastURL)
}

func TestLoad_MQTTDisabled(t *testing.T) {
	t.Setenv("MQTT_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MQTTEnabled)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidThreshold(t *testing.T) {
	t.Setenv("ALERT_THRESHOLD_MM", "lots")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALERT_THRESHOLD_MM")
}

func TestLoad_ThresholdsNotAscending(t *testing.T) {
	t.Setenv("ALERT_THRESHOLD_MM", "120")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALERT_THRESHOLD_MM")
}

func TestLoad_InvalidCooldown(t *testing.T) {
	t.Setenv("ALERT_COOLDOWN_SEC", "-1")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALERT_COOLDOWN_SEC")
}

func TestLoad_ZeroCooldownAllowed(t *testing.T) {
	t.Setenv("ALERT_COOLDOWN_SEC", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.AlertCooldown)
}

func TestLoad_InvalidWorkers(t *testing.T) {
	t.Setenv("ALERT_WORKERS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALERT_WORKERS")
}

func TestLoad_InvalidTelegramTimeout(t *testing.T) {
	t.Setenv("TELEGRAM_TIMEOUT", "bad")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_TIMEOUT")
}

func TestLoad_TelegramNeedsBothCredentials(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ALERT_COOLDOWN_SEC=42\n"), 0o600))
	t.Setenv("ALERT_COOLDOWN_SEC", "")
	require.NoError(t, os.Unsetenv("ALERT_COOLDOWN_SEC"))

	require.NoError(t, LoadDotEnv(path))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, cfg.AlertCooldown)
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadDotEnv_FileDoesNotOverrideEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RAINFALL_DOTENV_NEW=from-file\nRAINFALL_DOTENV_SET=from-file\n"), 0o644))
	t.Setenv("RAINFALL_DOTENV_SET", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("RAINFALL_DOTENV_NEW") })

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path))

	assert.Equal(t, "from-file", os.Getenv("RAINFALL_DOTENV_NEW"))
	assert.Equal(t, "from-env", os.Getenv("RAINFALL_DOTENV_SET"), "existing environment wins")
}

func TestLoadDotEnv_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BAD-KEY=1\n"), 0o644))

	assert.Error(t, LoadDotEnv(path))
}
