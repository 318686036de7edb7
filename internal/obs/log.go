package obs

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	loggerOnce sync.Once
	logger     zerolog.Logger
)

// InitLogger configures the process-wide logger. Console output is used in
// the local environment, JSON everywhere else. Safe to call more than once;
// only the first call wins.
func InitLogger(service, environment string) {
	loggerOnce.Do(func() {
		var out = zerolog.New(os.Stdout)
		if environment == "local" {
			out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
		}
		logger = out.With().Timestamp().Str("service", service).Logger()
	})
}

// Logger returns the shared structured logger used across the service.
func Logger() zerolog.Logger {
	loggerOnce.Do(func() {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	})
	return logger
}
