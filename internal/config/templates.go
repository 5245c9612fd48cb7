package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "service":
		return serviceTemplate, nil
	case "routers":
		return routersTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serviceTemplate = `name = "rosctl"
http_addr = ":9080"
cors_origins = ["http://localhost:3000"]
api_token_env = "ROSCTL_API_TOKEN"
routers_file = "routers.toml"
poll_interval_ms = 2000
connect_timeout_ms = 5000
write_timeout_ms = 10000
max_word_bytes = 16777216
backoff_initial_ms = 500
backoff_max_ms = 30000
backoff_multiplier = 2.0
backoff_jitter = true
`

const routersTemplate = `[[routers]]
id = "core"
name = "Core Router"
host = "192.168.88.1"
port = 8728
username = "admin"
password_env = "ROSCTL_CORE_PASSWORD"
`
