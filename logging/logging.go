// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel   = "ARMLINK_LOG_LEVEL"
	EnvLogNoColor = "ARMLINK_LOG_NOCOLOR"
)

// Config selects the level and console styling.
type Config struct {
	Level   zerolog.Level
	NoColor bool
}

func DefaultConfig() Config {
	return Config{Level: zerolog.InfoLevel}
}

// ApplyEnv overrides cfg from the environment. Unset or unparsable values are ignored.
func ApplyEnv(cfg Config) Config {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	return cfg
}

// New builds a console logger writing to out, tagged with app.
func New(app string, cfg Config, out io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    cfg.NoColor,
	}
	return zerolog.New(output).Level(cfg.Level).With().Timestamp().Str("app", app).Logger()
}

// Init builds the logger for app on stderr and installs it as log.Logger.
func Init(app string, cfg Config) zerolog.Logger {
	logger := New(app, ApplyEnv(cfg), os.Stderr)
	log.Logger = logger
	return logger
}

// ParseLevel accepts the usual level names plus a few aliases for "off".
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
