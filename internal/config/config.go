package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the CareLink realtime server.
type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	WebSocket  WebSocketConfig           `mapstructure:"websocket"`
	Auth       AuthConfig                `mapstructure:"auth"`
	Database   DatabaseConfig            `mapstructure:"database"`
	NATS       NATSConfig                `mapstructure:"nats"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	Logging    LoggingConfig             `mapstructure:"logging"`
	Thresholds map[string]ThresholdRange `mapstructure:"thresholds"`
}

// ServerConfig contains network level settings for the HTTP/WebSocket listener.
type ServerConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

// WebSocketConfig controls connection behaviour and buffer sizing.
type WebSocketConfig struct {
	Path              string `mapstructure:"path"`
	ReadBufferSize    int    `mapstructure:"read_buffer_size"`
	WriteBufferSize   int    `mapstructure:"write_buffer_size"`
	SendChannelSize   int    `mapstructure:"send_channel_size"`
	MaxMessageSize    int64  `mapstructure:"max_message_size"`
	EnableCompression bool   `mapstructure:"enable_compression"`
}

// AuthConfig controls JWT verification at the connection handshake.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	AllowDevToken bool          `mapstructure:"allow_dev_token"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN builds a lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// NATSConfig controls the outbound notification publisher.
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoggingConfig controls zap logger level/encoding.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// ThresholdRange is an inclusive safe range for a vital sign type. A nil
// bound means the bound is not configured; zero is a valid configured bound.
type ThresholdRange struct {
	Min *float64 `mapstructure:"min"`
	Max *float64 `mapstructure:"max"`
}

// Load reads configuration from defaults, an optional carelink config file
// and CARELINK_* environment variables.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.handshake_timeout", 5*time.Second)

	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 4096)
	v.SetDefault("websocket.write_buffer_size", 4096)
	v.SetDefault("websocket.send_channel_size", 256)
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.enable_compression", false)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.allow_dev_token", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "carelink")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "carelink")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.endpoint", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	for vital, r := range DefaultThresholds() {
		if r.Min != nil {
			v.SetDefault("thresholds."+vital+".min", *r.Min)
		}
		if r.Max != nil {
			v.SetDefault("thresholds."+vital+".max", *r.Max)
		}
	}

	v.SetConfigName("carelink")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("CARELINK")
	v.AutomaticEnv()

	// Config file is optional
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config unmarshal: %w", err)
	}

	if cfg.WebSocket.SendChannelSize <= 0 {
		cfg.WebSocket.SendChannelSize = 256
	}
	if cfg.Server.HandshakeTimeout <= 0 {
		cfg.Server.HandshakeTimeout = 5 * time.Second
	}

	return cfg, nil
}

// DefaultThresholds returns the built-in safe ranges for the vital sign
// types the coordination app reports.
func DefaultThresholds() map[string]ThresholdRange {
	f := func(v float64) *float64 { return &v }
	return map[string]ThresholdRange{
		"heart_rate":               {Min: f(40), Max: f(120)},
		"blood_pressure_systolic":  {Min: f(90), Max: f(180)},
		"blood_pressure_diastolic": {Min: f(60), Max: f(110)},
		"temperature":              {Min: f(35), Max: f(39.5)},
		"oxygen_saturation":        {Min: f(90), Max: nil},
		"blood_glucose":            {Min: f(54), Max: f(300)},
	}
}
