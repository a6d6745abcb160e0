package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig holds MQTT broker settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// GetDSN returns the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LoadFromEnv overrides fields from <prefix>_HOST, _PORT, _USER, _PASSWORD,
// _NAME and _SSLMODE when set.
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	envString(prefix+"_HOST", &c.Host)
	envInt(prefix+"_PORT", &c.Port)
	envString(prefix+"_USER", &c.User)
	envString(prefix+"_PASSWORD", &c.Password)
	envString(prefix+"_NAME", &c.Database)
	envString(prefix+"_SSLMODE", &c.SSLMode)
	envInt(prefix+"_MAX_CONNS", &c.MaxConns)
	envInt(prefix+"_MAX_IDLE", &c.MaxIdle)
}

// LoadFromEnv overrides fields from <prefix>_ADDR, _PASSWORD and _DB.
func (c *RedisConfig) LoadFromEnv(prefix string) {
	envString(prefix+"_ADDR", &c.Addr)
	envString(prefix+"_PASSWORD", &c.Password)
	envInt(prefix+"_DB", &c.DB)
}

// LoadFromEnv overrides fields from <prefix>_BROKER, _CLIENT_ID, _USERNAME,
// _PASSWORD and _QOS. A QoS outside 0..2 is ignored.
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	envString(prefix+"_BROKER", &c.Broker)
	envString(prefix+"_CLIENT_ID", &c.ClientID)
	envString(prefix+"_USERNAME", &c.Username)
	envString(prefix+"_PASSWORD", &c.Password)

	qos := int(c.QoS)
	envInt(prefix+"_QOS", &qos)
	if qos >= 0 && qos <= 2 {
		c.QoS = byte(qos)
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	*dst = ParseInt(os.Getenv(key), *dst)
}

// ParseInt parses s, returning def when s is empty or malformed.
func ParseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

// ParseDuration parses s (e.g. "30s", "1h"), returning def when s is empty,
// malformed or not positive.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
