package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host       string `env:"HOST,default=0.0.0.0"`
	Port       int    `env:"PORT,default=8080"`
	HealthPort int    `env:"HEALTH_PORT,default=8081"`
	DebugPort  int    `env:"DEBUG_PORT,default=8082"`
	LogLevel   string `env:"LOG_LEVEL,default=INFO"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	RegistryShards       int           `env:"REGISTRY_SHARDS,default=32"`
	DirectoryTimeout     time.Duration `env:"DIRECTORY_TIMEOUT,default=2s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s"`
	ExpiryInterval       time.Duration `env:"EXPIRY_INTERVAL,default=30s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`

	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=65536"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PongTimeout     time.Duration `env:"PONG_TIMEOUT,default=60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS"`

	CensoredWords string `env:"CENSORED_WORDS"`
	CensorMask    string `env:"CENSOR_MASK,default=*"`
}

// Validate rejects values go-env accepts syntactically but the server cannot run with.
func (c Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWTSecret))
	}
	if c.ConnectionBufferSize <= 0 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	}
	if c.PongTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("PONG_TIMEOUT and WRITE_TIMEOUT must be positive")
	}
	if c.MetricInterval <= 0 || c.ExpiryInterval <= 0 {
		return fmt.Errorf("METRIC_INTERVAL and EXPIRY_INTERVAL must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("MAX_MESSAGE_SIZE must be positive, got %d", c.MaxMessageSize)
	}
	return nil
}

// PingPeriod keeps pings inside the pong deadline.
func (c Config) PingPeriod() time.Duration {
	return c.PongTimeout * 9 / 10
}

// Origins splits ALLOWED_ORIGINS. An empty result means same-origin only.
func (c Config) Origins() []string {
	origins := lo.Map(strings.Split(c.AllowedOrigins, ","), func(o string, _ int) string {
		return strings.TrimRight(strings.TrimSpace(o), "/")
	})
	return lo.Compact(origins)
}

// Censored splits CENSORED_WORDS. Empty means message content is never rewritten.
func (c Config) Censored() []string {
	return lo.Compact(lo.Map(strings.Split(c.CensoredWords, ","), func(w string, _ int) string {
		return strings.TrimSpace(w)
	}))
}

// Mask is the first rune of CENSOR_MASK.
func (c Config) Mask() rune {
	for _, r := range c.CensorMask {
		return r
	}
	return '*'
}

func (c Config) IsDebug() bool {
	return strings.EqualFold(c.LogLevel, "DEBUG")
}
