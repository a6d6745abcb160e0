package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.HTTP.Addr != ":3000" {
		t.Errorf("Expected HTTP_ADDR default ':3000', got '%s'", cfg.HTTP.Addr)
	}
	if cfg.HTTP.StaticDir != "public" {
		t.Errorf("Expected STATIC_DIR default 'public', got '%s'", cfg.HTTP.StaticDir)
	}
	if cfg.DataDir != "data" {
		t.Errorf("Expected DATA_DIR default 'data', got '%s'", cfg.DataDir)
	}
	if cfg.TLSEnabled() {
		t.Error("Expected TLS disabled by default")
	}
	if cfg.Hub.SendBuffer != 64 || cfg.Hub.SinkBuffer != 1024 {
		t.Errorf("Unexpected buffer defaults: send=%d sink=%d", cfg.Hub.SendBuffer, cfg.Hub.SinkBuffer)
	}
	if cfg.Hub.PingInterval != 25*time.Second || cfg.Hub.PongWait != 60*time.Second {
		t.Errorf("Unexpected liveness defaults: ping=%s pong=%s", cfg.Hub.PingInterval, cfg.Hub.PongWait)
	}
	if cfg.RedisEnabled || cfg.MQTTEnabled || cfg.Archive.Enabled || cfg.DBEnabled {
		t.Error("Expected optional integrations disabled by default")
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Expected REDIS_ADDR default 'localhost:6379', got '%s'", cfg.Redis.Addr)
	}
	if cfg.SampleStream.Name != "telemetry:samples:stream" {
		t.Errorf("Expected sample stream default, got '%s'", cfg.SampleStream.Name)
	}
	if cfg.MQTT.ClientID != "telemetry-hub" || cfg.MQTTTopicPrefix != "telemetry" {
		t.Errorf("Unexpected MQTT defaults: client=%s prefix=%s", cfg.MQTT.ClientID, cfg.MQTTTopicPrefix)
	}
	if cfg.Archive.Interval != time.Hour || cfg.Archive.Window != 48*time.Hour {
		t.Errorf("Unexpected archive defaults: interval=%s window=%s", cfg.Archive.Interval, cfg.Archive.Window)
	}
	if cfg.Database.Port != 5432 || cfg.Database.Database != "telemetry" {
		t.Errorf("Unexpected DB defaults: port=%d name=%s", cfg.Database.Port, cfg.Database.Database)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Unexpected log defaults: level=%s format=%s", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	t.Setenv("HTTP_ADDR", ":8443")
	t.Setenv("TLS_CERT_FILE", "/etc/tls/cert.pem")
	t.Setenv("TLS_KEY_FILE", "/etc/tls/key.pem")
	t.Setenv("HUB_SEND_BUFFER", "16")
	t.Setenv("HUB_PING_INTERVAL", "10s")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("MQTT_QOS", "1")
	t.Setenv("ARCHIVE_ENABLED", "true")
	t.Setenv("ARCHIVE_ENDPOINT", "https://bucket.example.com")
	t.Setenv("ARCHIVE_WINDOW", "6h")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.HTTP.Addr != ":8443" || !cfg.TLSEnabled() {
		t.Errorf("Expected TLS on :8443, got addr=%s tls=%v", cfg.HTTP.Addr, cfg.TLSEnabled())
	}
	if cfg.Hub.SendBuffer != 16 || cfg.Hub.PingInterval != 10*time.Second {
		t.Errorf("Unexpected hub settings: send=%d ping=%s", cfg.Hub.SendBuffer, cfg.Hub.PingInterval)
	}
	if !cfg.RedisEnabled || cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 3 {
		t.Errorf("Unexpected redis settings: %+v enabled=%v", cfg.Redis, cfg.RedisEnabled)
	}
	if !cfg.MQTTEnabled || cfg.MQTT.QoS != 1 {
		t.Errorf("Unexpected MQTT settings: enabled=%v qos=%d", cfg.MQTTEnabled, cfg.MQTT.QoS)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Window != 6*time.Hour {
		t.Errorf("Unexpected archive settings: %+v", cfg.Archive)
	}
	if !cfg.DBEnabled || cfg.Database.Host != "db" || cfg.Database.Port != 6543 {
		t.Errorf("Unexpected DB settings: %+v", cfg.Database)
	}
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	os.Clearenv()
	t.Setenv("HUB_SINK_BUFFER", "lots")
	t.Setenv("HUB_PONG_WAIT", "-1s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Hub.SinkBuffer != 1024 {
		t.Errorf("Expected default sink buffer, got %d", cfg.Hub.SinkBuffer)
	}
	if cfg.Hub.PongWait != 60*time.Second {
		t.Errorf("Expected default pong wait, got %s", cfg.Hub.PongWait)
	}
}

func TestLoad_InvalidCombinations(t *testing.T) {
	os.Clearenv()
	t.Setenv("ARCHIVE_ENABLED", "true")
	if _, err := Load(); err == nil {
		t.Error("Expected error when archive is enabled without an endpoint")
	}

	os.Clearenv()
	t.Setenv("TLS_CERT_FILE", "/etc/tls/cert.pem")
	if _, err := Load(); err == nil {
		t.Error("Expected error when only the TLS certificate is set")
	}
}
