// Package dbctx wires a single structured zerolog.Logger through the
// facade, buffer pool, and executor, rather than each package reaching for
// the standard log package directly.
package dbctx

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger returns a console-writer zerolog.Logger. MINIDB_DEBUG=1 bumps the
// level to Debug (and so enables page/executor tracing); otherwise the level
// is Info. Read once at construction, matching the facade's single
// construction-time check of the variable.
func NewLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if os.Getenv("MINIDB_DEBUG") == "1" {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
