// Package logging wires the relayer's structured logging: a single
// logiface.Logger[*stumpy.Event] constructed at process start and threaded
// through every component by constructor injection. Components that need
// a logger but weren't given one fall back to NoOp rather than a package
// level global.
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type used throughout the relayer.
type Logger = logiface.Logger[*stumpy.Event]

// Config controls the process-wide logger.
type Config struct {
	// Writer receives one JSON object per log line. Defaults to os.Stdout.
	Writer io.Writer
	// Level is the minimum level that will be logged. Defaults to
	// logiface.LevelInformational.
	Level logiface.Level
	// LevelSet reports whether Level was explicitly set; without it, the
	// zero value of logiface.Level (LevelEmergency) would incorrectly
	// silence everything but emergencies.
	LevelSet bool
}

// New constructs the process logger per Config.
func New(cfg Config) *Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}
	level := logiface.LevelInformational
	if cfg.LevelSet {
		level = cfg.Level
	}

	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(writer)),
		stumpy.L.WithLevel(level),
	)
}

// NoOp returns a logger with logging disabled, used by components
// constructed without an explicit Logger.
func NoOp() *Logger {
	return stumpy.L.New(stumpy.L.WithLevel(logiface.LevelDisabled))
}
