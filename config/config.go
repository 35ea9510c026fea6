// Package config loads the armlink TOML file on top of built-in defaults.
//
// Only keys present in the file override a default, so a file may be as short
// as a single host line.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"armlink/client"
	"armlink/codec"
	"armlink/logging"
	"armlink/protocol"
)

// Config is everything a command-line tool needs to reach one arm.
type Config struct {
	Client        client.Config
	Log           logging.Config
	MetricsListen string // Empty disables the /metrics endpoint
}

func Default() Config {
	return Config{
		Client: client.DefaultConfig(),
		Log:    logging.DefaultConfig(),
	}
}

type fileConfig struct {
	Arm struct {
		Host              string `toml:"host"`
		Port              int    `toml:"port"`
		ConnectTimeout    string `toml:"connect_timeout"`
		ConnectAttempts   int    `toml:"connect_attempts"`
		ReadTimeout       string `toml:"read_timeout"`
		WriteTimeout      string `toml:"write_timeout"`
		PayloadLayout     string `toml:"payload_layout"`
		DefaultDurationMs int32  `toml:"default_duration_ms"`
	} `toml:"arm"`
	Commands struct {
		Rate            float64 `toml:"rate"`
		Burst           int     `toml:"burst"`
		Timeout         string  `toml:"timeout"`
		QueryRetries    int     `toml:"query_retries"`
		HomeOnShutdown  bool    `toml:"home_on_shutdown"`
		ShutdownTimeout string  `toml:"shutdown_timeout"`
	} `toml:"commands"`
	Log struct {
		Level   string `toml:"level"`
		NoColor bool   `toml:"no_color"`
	} `toml:"log"`
	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`
}

// Load reads path. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg, err := apply(Default(), raw, meta)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load for an in-memory document.
func Parse(doc string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return apply(Default(), raw, meta)
}

func apply(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown key %q", undecoded[0].String())
	}

	host, port, err := net.SplitHostPort(cfg.Client.Address)
	if err != nil {
		host, port = "127.0.0.1", strconv.Itoa(protocol.DefaultPort)
	}
	if meta.IsDefined("arm", "host") {
		if h := strings.TrimSpace(raw.Arm.Host); h != "" {
			host = h
		}
	}
	if meta.IsDefined("arm", "port") {
		if raw.Arm.Port <= 0 || raw.Arm.Port > 65535 {
			return Config{}, fmt.Errorf("arm.port %d out of range", raw.Arm.Port)
		}
		port = strconv.Itoa(raw.Arm.Port)
	}
	cfg.Client.Address = net.JoinHostPort(host, port)

	durations := []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"arm", "connect_timeout"}, raw.Arm.ConnectTimeout, &cfg.Client.Transport.ConnectTimeout},
		{[]string{"arm", "read_timeout"}, raw.Arm.ReadTimeout, &cfg.Client.Transport.ReadTimeout},
		{[]string{"arm", "write_timeout"}, raw.Arm.WriteTimeout, &cfg.Client.Transport.WriteTimeout},
		{[]string{"commands", "timeout"}, raw.Commands.Timeout, &cfg.Client.CommandTimeout},
		{[]string{"commands", "shutdown_timeout"}, raw.Commands.ShutdownTimeout, &cfg.Client.ShutdownTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.dst = v
	}

	if meta.IsDefined("arm", "connect_attempts") {
		cfg.Client.Transport.ConnectAttempts = max(raw.Arm.ConnectAttempts, 1)
	}
	if meta.IsDefined("arm", "payload_layout") {
		layout, err := codec.ParseLayout(raw.Arm.PayloadLayout)
		if err != nil {
			return Config{}, err
		}
		cfg.Client.Layout = layout
	}
	if meta.IsDefined("arm", "default_duration_ms") {
		cfg.Client.DefaultDurationMs = raw.Arm.DefaultDurationMs
	}

	if meta.IsDefined("commands", "rate") {
		cfg.Client.CommandRate = raw.Commands.Rate
	}
	if meta.IsDefined("commands", "burst") {
		cfg.Client.CommandBurst = raw.Commands.Burst
	}
	if meta.IsDefined("commands", "query_retries") {
		cfg.Client.QueryRetries = raw.Commands.QueryRetries
	}
	if meta.IsDefined("commands", "home_on_shutdown") {
		cfg.Client.HomeOnShutdown = raw.Commands.HomeOnShutdown
	}

	if meta.IsDefined("log", "level") {
		lvl, ok := logging.ParseLevel(raw.Log.Level)
		if !ok {
			return Config{}, fmt.Errorf("log.level: unknown level %q", raw.Log.Level)
		}
		cfg.Log.Level = lvl
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}
	if meta.IsDefined("metrics", "listen") {
		cfg.MetricsListen = strings.TrimSpace(raw.Metrics.Listen)
	}
	return cfg, nil
}

// Summary renders the effective settings for a startup log line.
func (c Config) Summary(e *zerolog.Event) *zerolog.Event {
	return e.
		Str("addr", c.Client.Address).
		Str("layout", c.Client.Layout.String()).
		Dur("connect_timeout", c.Client.Transport.ConnectTimeout).
		Dur("command_timeout", c.Client.CommandTimeout).
		Float64("rate", c.Client.CommandRate).
		Bool("home_on_shutdown", c.Client.HomeOnShutdown)
}
