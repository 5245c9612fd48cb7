package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// RoutersConfig is the router inventory file.
type RoutersConfig struct {
	Routers []RouterEntry `toml:"routers"`
}

type RouterEntry struct {
	ID          string `toml:"id"`
	Name        string `toml:"name"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	PasswordEnv string `toml:"password_env"`
}

func LoadRoutersConfig(path string) (RoutersConfig, error) {
	var cfg RoutersConfig
	if err := loadToml(path, &cfg); err != nil {
		return RoutersConfig{}, err
	}
	for i := range cfg.Routers {
		if strings.TrimSpace(cfg.Routers[i].Username) == "" {
			cfg.Routers[i].Username = "admin"
		}
	}
	if err := ValidateRoutersConfig(cfg); err != nil {
		return RoutersConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateRoutersConfig(cfg RoutersConfig) error {
	if len(cfg.Routers) == 0 {
		return fmt.Errorf("routers config has no routers")
	}
	seen := make(map[string]int, len(cfg.Routers))
	for i, entry := range cfg.Routers {
		if err := ValidateRouterEntry(entry); err != nil {
			return fmt.Errorf("router[%d] invalid: %w", i, err)
		}
		id := strings.TrimSpace(entry.ID)
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("router[%d] duplicates id %q of router[%d]", i, id, prev)
		}
		seen[id] = i
	}
	return nil
}

func ValidateRouterEntry(entry RouterEntry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(entry.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if strings.Contains(entry.Host, ":") && !strings.HasPrefix(entry.Host, "[") && strings.Count(entry.Host, ":") == 1 {
		return fmt.Errorf("host must not carry a port; use port")
	}
	if entry.Port < 0 || entry.Port > 65535 {
		return fmt.Errorf("port out of range: %d", entry.Port)
	}
	if entry.Password != "" && entry.PasswordEnv != "" {
		return fmt.Errorf("password and password_env are mutually exclusive")
	}
	return nil
}
