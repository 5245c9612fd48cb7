package session

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/rosctl/internal/protocol/frame"
)

// DefaultPort is the plaintext RouterOS API port.
const DefaultPort = 8728

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines one router connection.
type Config struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ReadBufferSize int
	Limits         frame.Limits
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadBufferSize: 4096,
		Limits:         frame.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Host = strings.TrimSpace(c.Host)
	if c.Port <= 0 {
		c.Port = def.Port
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.Limits.MaxWordBytes == 0 {
		c.Limits = def.Limits
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
