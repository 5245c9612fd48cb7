package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/rosctl/internal/logging"
)

// InitLogger derives the structured request logger from the process logger
// and installs it as the zerolog global.
func InitLogger(app string) zerolog.Logger {
	logger := logging.Logger().With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
