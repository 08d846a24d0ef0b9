// Package logging builds the structured logger and the colored console
// notices used across reprounzip.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// LevelFromVerbosity maps the number of -v flags to a log level.
func LevelFromVerbosity(verbosity int) hclog.Level {
	switch {
	case verbosity <= 0:
		return hclog.Warn
	case verbosity == 1:
		return hclog.Info
	case verbosity == 2:
		return hclog.Debug
	default:
		return hclog.Trace
	}
}

// New returns the root logger. REPROUNZIP_LOG_LEVEL overrides the verbosity
// derived level and REPROUNZIP_JSON_LOG switches to JSON lines.
func New(verbosity int, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}
	level := LevelFromVerbosity(verbosity)
	if env := os.Getenv("REPROUNZIP_LOG_LEVEL"); env != "" {
		if l := hclog.LevelFromString(env); l != hclog.NoLevel {
			level = l
		}
	}
	jsonFormat := false
	switch strings.ToLower(os.Getenv("REPROUNZIP_JSON_LOG")) {
	case "1", "true", "yes":
		jsonFormat = true
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       "reprounzip",
		Level:      level,
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}
