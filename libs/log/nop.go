package log

import (
	"io"

	"github.com/rs/zerolog"
)

// NewNopLogger returns a logger that drops every entry. It shares the
// default logger's type, so the root command can still replace it with
// OverrideWithNewLogger once the configuration is parsed.
func NewNopLogger() Logger {
	return &defaultLogger{
		Logger: zerolog.New(io.Discard).Level(zerolog.Disabled),
	}
}
