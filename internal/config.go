package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

const defaultOrigins = "http://localhost:8080,http://localhost:8081"

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=5000"`
	HealthPort           int           `env:"HEALTH_PORT,default=5001"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS"`
	StoreBackend         string        `env:"STORE_BACKEND,default=badger"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,default=data/badger"`
	SQLiteFilepath       string        `env:"SQLITE_FILEPATH,default=data/messages.db"`
	BufferSize           int           `env:"BUFFER_SIZE,default=256"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	IdleTimeout          time.Duration `env:"CONVERSATION_IDLE_TIMEOUT,default=1m"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	SendAckEnabled       bool          `env:"SEND_ACK_ENABLED,default=false"`
	ReportInterval       time.Duration `env:"REPORT_INTERVAL,default=0s"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
}

// Origins splits ALLOWED_ORIGINS, blank entries are ignored.
// The tag of a go-env field cannot hold a comma, the default list is applied here.
func (c Config) Origins() []string {
	raw := c.AllowedOrigins
	if strings.TrimSpace(raw) == "" {
		raw = defaultOrigins
	}
	origins := lo.Map(strings.Split(raw, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	})
	return lo.Compact(origins)
}

// Validate rejects sizes that cannot back a channel.
// A DELIVERY_TIMEOUT of zero disables the per-delivery timeout.
func (c Config) Validate() error {
	if c.BufferSize < 0 {
		return fmt.Errorf("BUFFER_SIZE must not be negative, got %d", c.BufferSize)
	}
	if c.ConnectionBufferSize < 1 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	}
	if c.DeliveryTimeout < 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT must not be negative, got %s", c.DeliveryTimeout)
	}
	return nil
}
