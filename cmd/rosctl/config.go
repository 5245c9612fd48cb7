package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/rosctl/internal/poller"
	"github.com/danmuck/rosctl/internal/server"
)

// rosctl config.toml key mapping to poller, session and HTTP settings.
type fileConfig struct {
	Name              string   `toml:"name"`
	HTTPAddr          string   `toml:"http_addr"`
	CorsOrigins       []string `toml:"cors_origins"`
	APIToken          string   `toml:"api_token"`
	APITokenEnv       string   `toml:"api_token_env"`
	RoutersFile       string   `toml:"routers_file"`
	PollInterval      string   `toml:"poll_interval"`
	PollIntervalMS    int64    `toml:"poll_interval_ms"`
	ConnectTimeoutMS  int64    `toml:"connect_timeout_ms"`
	WriteTimeoutMS    int64    `toml:"write_timeout_ms"`
	ReadBufferSize    int      `toml:"read_buffer_size"`
	MaxWordBytes      uint32   `toml:"max_word_bytes"`
	BackoffInitialMS  int64    `toml:"backoff_initial_ms"`
	BackoffMaxMS      int64    `toml:"backoff_max_ms"`
	BackoffMultiplier float64  `toml:"backoff_multiplier"`
	BackoffJitter     bool     `toml:"backoff_jitter"`
}

type serviceConfig struct {
	Server      server.Config
	Poller      poller.Config
	RoutersFile string
}

func defaultServiceConfig() serviceConfig {
	return serviceConfig{
		Server:      server.DefaultConfig(),
		Poller:      poller.DefaultConfig(),
		RoutersFile: "routers.toml",
	}
}

// loadServiceConfig overlays keys present in path onto the defaults.
// A relative routers_file resolves against the config file's directory.
func loadServiceConfig(path string) (serviceConfig, error) {
	cfg := defaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("load rosctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return serviceConfig{}, fmt.Errorf("load rosctl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Server.Name = name
		}
	}
	if meta.IsDefined("http_addr") {
		cfg.Server.Addr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.Server.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}
	if meta.IsDefined("api_token") {
		cfg.Server.APIToken = strings.TrimSpace(raw.APIToken)
	}
	if meta.IsDefined("api_token_env") {
		cfg.Server.APIToken = strings.TrimSpace(os.Getenv(strings.TrimSpace(raw.APITokenEnv)))
	}
	if meta.IsDefined("routers_file") {
		cfg.RoutersFile = strings.TrimSpace(raw.RoutersFile)
	}
	if cfg.RoutersFile != "" && !filepath.IsAbs(cfg.RoutersFile) {
		cfg.RoutersFile = filepath.Join(filepath.Dir(path), cfg.RoutersFile)
	}

	if meta.IsDefined("poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return serviceConfig{}, fmt.Errorf("parse poll_interval: %w", err)
		}
		cfg.Poller.Interval = d
	}
	if meta.IsDefined("poll_interval_ms") {
		cfg.Poller.Interval = time.Duration(raw.PollIntervalMS) * time.Millisecond
	}
	if cfg.Poller.Interval <= 0 {
		return serviceConfig{}, fmt.Errorf("poll interval must be positive: %v", cfg.Poller.Interval)
	}

	sess := &cfg.Poller.Session
	if meta.IsDefined("connect_timeout_ms") {
		sess.ConnectTimeout = time.Duration(raw.ConnectTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("write_timeout_ms") {
		sess.WriteTimeout = time.Duration(raw.WriteTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("read_buffer_size") {
		sess.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("max_word_bytes") {
		sess.Limits.MaxWordBytes = raw.MaxWordBytes
	}
	if meta.IsDefined("backoff_initial_ms") {
		sess.Backoff.InitialDelay = time.Duration(raw.BackoffInitialMS) * time.Millisecond
	}
	if meta.IsDefined("backoff_max_ms") {
		sess.Backoff.MaxDelay = time.Duration(raw.BackoffMaxMS) * time.Millisecond
	}
	if meta.IsDefined("backoff_multiplier") {
		sess.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_jitter") {
		sess.Backoff.Jitter = raw.BackoffJitter
	}

	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
