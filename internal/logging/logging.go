// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "VOWSOCK_LOG_LEVEL"
	EnvLogFormat    = "VOWSOCK_LOG_FORMAT"
	EnvLogTimestamp = "VOWSOCK_LOG_TIMESTAMP"
	EnvLogNoColor   = "VOWSOCK_LOG_NOCOLOR"
)

// Config selects level and output format.
type Config struct {
	Level     string
	Format    string // "console" or "json"
	Timestamp bool
	NoColor   bool
}

// DefaultConfig logs info and above to a console writer with timestamps.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", Timestamp: true}
}

// New builds a logger writing to w, applying environment overrides.
func New(app string, cfg Config, w io.Writer) zerolog.Logger {
	applyEnvOverrides(&cfg)
	if w == nil {
		w = os.Stdout
	}

	out := w
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
	}

	level, _ := ParseLevel(cfg.Level)
	ctx := zerolog.New(out).Level(level).With().Str("app", app)
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Format = strings.ToLower(v)
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// ParseLevel maps a level name to a zerolog level. Unknown names yield info.
func ParseLevel(raw string) (zerolog.Level, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return zerolog.InfoLevel, false
	case "off", "none":
		return zerolog.Disabled, true
	case "warning":
		return zerolog.WarnLevel, true
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel, false
	}
	return level, true
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
