package config

import (
	"os"

	"github.com/danmuck/rosctl/internal/poller"
)

// PollerRouters converts inventory entries, resolving password_env.
func PollerRouters(entries []RouterEntry) []poller.Router {
	routers := make([]poller.Router, 0, len(entries))
	for _, entry := range entries {
		password := entry.Password
		if entry.PasswordEnv != "" {
			password = os.Getenv(entry.PasswordEnv)
		}
		routers = append(routers, poller.Router{
			ID:       entry.ID,
			Name:     entry.Name,
			Host:     entry.Host,
			Port:     entry.Port,
			Username: entry.Username,
			Password: password,
		})
	}
	return routers
}
