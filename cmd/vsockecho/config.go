// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// config is the complete vsockecho configuration.
type config struct {
	Server serverConfig `toml:"server"`
	Client clientConfig `toml:"client"`
	Log    logConfig    `toml:"log"`
}

// serverConfig configures the listen subcommand.
type serverConfig struct {
	// Port is the port to listen on.
	Port uint32 `toml:"port"`

	// ReplyPrefix is prepended to each received message when echoing.
	ReplyPrefix string `toml:"reply_prefix"`

	// Framed selects the length-prefixed framing.
	Framed bool `toml:"framed"`
}

// clientConfig configures the connect subcommand.
type clientConfig struct {
	// CID is the context id of the server.
	CID uint32 `toml:"cid"`

	// Port is the port of the server.
	Port uint32 `toml:"port"`

	// Messages are written one after the other once connected.
	Messages []string `toml:"messages"`

	// Framed selects the length-prefixed framing.
	Framed bool `toml:"framed"`

	// Linger is how long to wait for replies after the last write.
	Linger duration `toml:"linger"`
}

// logConfig configures the structured logger.
type logConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `toml:"level"`

	// Format is either json or text.
	Format string `toml:"format"`
}

// duration is a [time.Duration] decoded from strings such as "1500ms".
type duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *duration) UnmarshalText(text []byte) error {
	value, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = value
	return nil
}

// defaultConfig returns the configuration used when no file is given.
func defaultConfig() config {
	return config{
		Server: serverConfig{
			Port:        9001,
			ReplyPrefix: "hear you! ",
			Framed:      false,
		},
		Client: clientConfig{
			CID:      100,
			Port:     9001,
			Messages: []string{"hello, ", "w", "o", "r", "l", "d"},
			Framed:   false,
			Linger:   duration{time.Second},
		},
		Log: logConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadConfig returns the defaults overridden by the TOML file at path.
//
// An empty path returns the defaults. Unknown keys are an error.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}
	return cfg, nil
}

// newLogger creates the [*slog.Logger] described by cfg writing to w.
func newLogger(w io.Writer, cfg logConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	options := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported %q", cfg.Format)
	}
}
