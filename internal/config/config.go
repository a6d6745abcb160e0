package config

import (
	"errors"
	"os"
	"time"

	commoncfg "telemetry-hub/common/config"
)

// Config is the telemetry hub configuration.
type Config struct {
	HTTP struct {
		Addr        string
		TLSCertFile string
		TLSKeyFile  string
		StaticDir   string
	}

	DataDir string

	Hub struct {
		SendBuffer   int
		SinkBuffer   int
		PingInterval time.Duration
		PongWait     time.Duration
	}

	RedisEnabled bool
	Redis        commoncfg.RedisConfig
	SampleStream struct {
		Name   string
		MaxLen int64
	}

	MQTTEnabled     bool
	MQTT            commoncfg.MQTTConfig
	MQTTTopicPrefix string

	Archive struct {
		Enabled  bool
		Endpoint string
		Token    string
		Prefix   string
		Interval time.Duration
		Window   time.Duration
	}

	DBEnabled bool
	Database  commoncfg.DatabaseConfig

	Log struct {
		Level  string
		Format string
	}
}

// TLSEnabled reports whether both certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.HTTP.TLSCertFile != "" && c.HTTP.TLSKeyFile != ""
}

// Load reads the configuration from the environment. Malformed numbers and
// durations fall back to their defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":3000")
	cfg.HTTP.TLSCertFile = getEnv("TLS_CERT_FILE", "")
	cfg.HTTP.TLSKeyFile = getEnv("TLS_KEY_FILE", "")
	cfg.HTTP.StaticDir = getEnv("STATIC_DIR", "public")
	cfg.DataDir = getEnv("DATA_DIR", "data")

	cfg.Hub.SendBuffer = commoncfg.ParseInt(getEnv("HUB_SEND_BUFFER", ""), 64)
	cfg.Hub.SinkBuffer = commoncfg.ParseInt(getEnv("HUB_SINK_BUFFER", ""), 1024)
	cfg.Hub.PingInterval = commoncfg.ParseDuration(getEnv("HUB_PING_INTERVAL", ""), 25*time.Second)
	cfg.Hub.PongWait = commoncfg.ParseDuration(getEnv("HUB_PONG_WAIT", ""), 60*time.Second)

	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.SampleStream.Name = getEnv("REDIS_SAMPLE_STREAM", "telemetry:samples:stream")
	cfg.SampleStream.MaxLen = int64(commoncfg.ParseInt(getEnv("REDIS_SAMPLE_STREAM_MAXLEN", ""), 100000))

	cfg.MQTTEnabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "telemetry-hub"
	cfg.MQTT.LoadFromEnv("MQTT")
	cfg.MQTTTopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "telemetry")

	cfg.Archive.Enabled = getEnv("ARCHIVE_ENABLED", "false") == "true"
	cfg.Archive.Endpoint = getEnv("ARCHIVE_ENDPOINT", "")
	cfg.Archive.Token = getEnv("ARCHIVE_TOKEN", "")
	cfg.Archive.Prefix = getEnv("ARCHIVE_PREFIX", "telemetry")
	cfg.Archive.Interval = commoncfg.ParseDuration(getEnv("ARCHIVE_INTERVAL", ""), time.Hour)
	cfg.Archive.Window = commoncfg.ParseDuration(getEnv("ARCHIVE_WINDOW", ""), 48*time.Hour)

	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "telemetry"
	cfg.Database.SSLMode = "disable"
	cfg.Database.LoadFromEnv("DB")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.Archive.Enabled && cfg.Archive.Endpoint == "" {
		return nil, errors.New("ARCHIVE_ENDPOINT is required when ARCHIVE_ENABLED=true")
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return nil, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
