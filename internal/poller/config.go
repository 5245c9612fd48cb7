package poller

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/rosctl/internal/protocol/session"
)

var (
	ErrNoRouters       = errors.New("poller: no routers configured")
	ErrRouterIDMissing = errors.New("poller: router id required")
	ErrDuplicateRouter = errors.New("poller: duplicate router id")
)

// Router is one configured device.
type Router struct {
	ID       string
	Name     string
	Host     string
	Port     int
	Username string
	Password string
}

// Label returns Name, falling back to ID.
func (r Router) Label() string {
	if strings.TrimSpace(r.Name) != "" {
		return r.Name
	}
	return r.ID
}

type Config struct {
	Interval time.Duration
	Session  session.Config
	Routers  []Router
}

func DefaultConfig() Config {
	return Config{
		Interval: 2 * time.Second,
		Session:  session.DefaultConfig(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	c.Session = c.Session.WithDefaults()
	return c
}

// Validate checks router ids are present and unique.
func (c Config) Validate() error {
	if len(c.Routers) == 0 {
		return ErrNoRouters
	}
	seen := make(map[string]struct{}, len(c.Routers))
	for i, r := range c.Routers {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			return fmt.Errorf("%w: routers[%d]", ErrRouterIDMissing, i)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateRouter, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// sessionConfig merges the router's address onto the shared session config.
func (c Config) sessionConfig(r Router) session.Config {
	cfg := c.Session
	cfg.Host = r.Host
	if r.Port > 0 {
		cfg.Port = r.Port
	}
	return cfg.WithDefaults()
}
