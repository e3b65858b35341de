// Package logging builds the process-wide console logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the logger at creation time.
type Options struct {
	Level   string
	NoColor bool
	Writer  io.Writer
}

// New creates a leveled, timestamped console logger. The default level is debug.
func New(opts Options) (zerolog.Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}

	level := zerolog.DebugLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), err
		}
		level = parsed
	}

	console := zerolog.ConsoleWriter{
		Out:        writer,
		TimeFormat: time.DateTime,
		NoColor:    opts.NoColor,
	}

	return zerolog.New(console).Level(level).With().Timestamp().Str("app", "MLA").Logger(), nil
}
