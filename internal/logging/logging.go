// internal/logging/logging.go
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process logger: readable console output in development,
// JSON everywhere else.
func New(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
