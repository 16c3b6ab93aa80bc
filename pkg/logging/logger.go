// Package logging configures zerolog for the freeze packages and commands.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel names a minimum level in configuration files and LOG_LEVEL.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Zerolog maps the name onto a zerolog level. "warning" is accepted for
// warn; unknown or empty names fall back to info.
func (l LogLevel) Zerolog() zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(string(l)))
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return level
}

// Config holds logger configuration.
type Config struct {
	Level LogLevel `yaml:"level"`

	// Pretty switches from JSON lines to zerolog's console writer
	Pretty bool `yaml:"pretty"`

	// Output defaults to os.Stderr
	Output io.Writer `yaml:"-"`
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// FromEnv returns DefaultConfig overridden by LOG_LEVEL and LOG_PRETTY.
func FromEnv() Config {
	cfg := DefaultConfig()
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = LogLevel(level)
	}
	switch strings.ToLower(os.Getenv("LOG_PRETTY")) {
	case "1", "true", "yes":
		cfg.Pretty = true
	}
	return cfg
}

// New builds a logger for cfg without touching global state. Debug loggers
// also record the caller.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	level := cfg.Level.Zerolog()
	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// Setup installs New(cfg) as the global logger that component loggers
// derive from, and applies its level globally.
func Setup(cfg Config) zerolog.Logger {
	logger := New(cfg)
	zerolog.SetGlobalLevel(cfg.Level.Zerolog())
	log.Logger = logger
	return logger
}

// NewLogger derives a logger tagged with component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level guidelines:
//
// Debug: snapshot hits and misses, eviction steps, skipped captures on pages
// without opt-in, generation changes.
//
// Info: completed restores (key, mode, duration); server and browser
// startup and shutdown.
//
// Warn: discarded snapshot blobs, failed or timed out script re-runs, fetch
// retries, failed history updates after a restore.
//
// Error: capture backend failures, failed restores and the navigations that
// replace them, configuration errors.
//
// Common fields: key, trigger, mode, generation, script, storage_key,
// error_class.
