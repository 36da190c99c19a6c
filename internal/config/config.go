package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// HandoffMode selects how the renderer obtains its first surface.
type HandoffMode string

const (
	// HandoffAuto tries the rendezvous socket and falls back to the global path.
	HandoffAuto HandoffMode = "auto"
	// HandoffRendezvous requires the rendezvous socket.
	HandoffRendezvous HandoffMode = "rendezvous"
	// HandoffGlobal always announces the surface id for global lookup.
	HandoffGlobal HandoffMode = "global"
)

const (
	DefaultScale           = 1.0
	DefaultStopGraceMs     = 200
	DefaultStopTermMs      = 100
	DefaultMaxPayloadBytes = 1 << 20
	DefaultWindowWidth     = 800
	DefaultWindowHeight    = 600
	DefaultWindowTitle     = "framelink"
)

// Window is the geometry of the top-level window the CLI opens.
type Window struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Title  string `yaml:"title"`
}

// Config is the effective configuration.
type Config struct {
	Renderer        string      `yaml:"renderer"`
	WorkDir         string      `yaml:"workdir,omitempty"`
	Args            []string    `yaml:"args,omitempty"`
	Scale           float64     `yaml:"scale"`
	Channel         string      `yaml:"channel"`
	Handoff         HandoffMode `yaml:"handoff"`
	StopGraceMs     int         `yaml:"stop_grace_ms"`
	StopTermMs      int         `yaml:"stop_term_ms"`
	MaxPayloadBytes int         `yaml:"max_payload_bytes"`
	LogLevel        string      `yaml:"log_level"`
	LogFormat       string      `yaml:"log_format"`
	Window          Window      `yaml:"window"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Scale:           DefaultScale,
		Channel:         "pipes",
		Handoff:         HandoffAuto,
		StopGraceMs:     DefaultStopGraceMs,
		StopTermMs:      DefaultStopTermMs,
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		LogLevel:        "info",
		LogFormat:       "auto",
		Window: Window{
			Width:  DefaultWindowWidth,
			Height: DefaultWindowHeight,
			Title:  DefaultWindowTitle,
		},
	}
}

// StopGrace is how long Stop waits after closing the renderer's input.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.StopGraceMs) * time.Millisecond
}

// StopTerm is how long Stop waits after SIGTERM.
func (c *Config) StopTerm() time.Duration {
	return time.Duration(c.StopTermMs) * time.Millisecond
}

// Validate performs strict validation of the effective configuration.
func (c *Config) Validate() error {
	if c.Scale <= 0 || c.Scale > 8 {
		return &ValidationError{Path: "scale", Err: fmt.Errorf("scale must be in (0, 8]")}
	}
	switch c.Channel {
	case "pipes", "socket":
	default:
		return &ValidationError{Path: "channel", Err: fmt.Errorf("channel must be one of: pipes, socket")}
	}
	switch c.Handoff {
	case HandoffAuto, HandoffRendezvous, HandoffGlobal:
	default:
		return &ValidationError{Path: "handoff", Err: fmt.Errorf("handoff must be one of: auto, rendezvous, global")}
	}
	if c.StopGraceMs < 0 {
		return &ValidationError{Path: "stop_grace_ms", Err: fmt.Errorf("stop_grace_ms must be >= 0")}
	}
	if c.StopTermMs < 0 {
		return &ValidationError{Path: "stop_term_ms", Err: fmt.Errorf("stop_term_ms must be >= 0")}
	}
	if c.MaxPayloadBytes <= 0 || c.MaxPayloadBytes > DefaultMaxPayloadBytes {
		return &ValidationError{Path: "max_payload_bytes", Err: fmt.Errorf("max_payload_bytes must be in (0, %d]", DefaultMaxPayloadBytes)}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warn, error")}
	}
	switch c.LogFormat {
	case "auto", "text", "json":
	default:
		return &ValidationError{Path: "log_format", Err: fmt.Errorf("log_format must be one of: auto, text, json")}
	}
	if c.Window.Width <= 0 || c.Window.Width > 32767 {
		return &ValidationError{Path: "window.width", Err: fmt.Errorf("window.width must be in [1, 32767]")}
	}
	if c.Window.Height <= 0 || c.Window.Height > 32767 {
		return &ValidationError{Path: "window.height", Err: fmt.Errorf("window.height must be in [1, 32767]")}
	}
	return nil
}

// Save writes the configuration to path, creating its directory.
//
// Note: this marshals the effective config and will not preserve comments or
// include structure from the original YAML.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
