// Package logging provides the leveled logger used for fatal diagnostics
// (ConfigError, PluginError, InvariantViolation) and LearnerError
// degradation warnings. Grounded on the zerolog console-writer idiom from
// GabrielNunesIT-go-libs/logger, trimmed to what this module needs.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the narrow surface cachesim's packages log through.
type Logger struct {
	zl zerolog.Logger
}

// New returns a console logger writing to out at InfoLevel, UTC
// timestamps — the same defaults as the teacher pack's NewConsoleLogger.
func New(out io.Writer) *Logger {
	writer := zerolog.ConsoleWriter{
		Out:          out,
		TimeFormat:   time.RFC3339,
		TimeLocation: time.UTC,
	}
	zl := zerolog.New(writer).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Default is the package-level logger used when a package is not given
// one explicitly (mirrors the teacher pack's dLog default-logger pattern).
var Default = New(os.Stdout)

// Warn logs a recoverable degradation (LearnerError).
func (l *Logger) Warn(msg string, err error) {
	l.zl.Warn().Err(err).Msg(msg)
}

// Fatal logs a fatal diagnostic (ConfigError, PluginError,
// InvariantViolation). Unlike the teacher pack's console logger, this
// never calls os.Exit: cachesim is a library, and the Cache Core panics
// immediately after logging so the driver's own process controls exit
// behavior.
func (l *Logger) Fatal(msg string, err error) {
	l.zl.Error().Err(err).Bool("fatal", true).Msg(msg)
}

// SetLevel adjusts the minimum emitted level.
func (l *Logger) SetLevel(level zerolog.Level) {
	l.zl = l.zl.Level(level)
}
