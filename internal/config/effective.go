package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BuildEffectiveConfig applies raw over the defaults.
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.Renderer != nil {
		cfg.Renderer = strings.TrimSpace(*raw.Renderer)
	}
	if raw.WorkDir != nil {
		cfg.WorkDir = strings.TrimSpace(*raw.WorkDir)
	}
	if raw.Args != nil {
		cfg.Args = append([]string(nil), raw.Args...)
	}
	if raw.Scale != nil {
		cfg.Scale = *raw.Scale
	}
	if raw.Channel != nil {
		cfg.Channel = strings.ToLower(strings.TrimSpace(*raw.Channel))
	}
	if raw.Handoff != nil {
		cfg.Handoff = HandoffMode(strings.ToLower(strings.TrimSpace(string(*raw.Handoff))))
	}
	if raw.StopGraceMs != nil {
		cfg.StopGraceMs = *raw.StopGraceMs
	}
	if raw.StopTermMs != nil {
		cfg.StopTermMs = *raw.StopTermMs
	}
	if raw.MaxPayloadBytes != nil {
		cfg.MaxPayloadBytes = *raw.MaxPayloadBytes
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(*raw.LogLevel))
	}
	if raw.LogFormat != nil {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(*raw.LogFormat))
	}
	if raw.Window != nil {
		if raw.Window.Width != nil {
			cfg.Window.Width = *raw.Window.Width
		}
		if raw.Window.Height != nil {
			cfg.Window.Height = *raw.Window.Height
		}
		if raw.Window.Title != nil {
			cfg.Window.Title = *raw.Window.Title
		}
	}

	if cfg.Renderer != "" {
		path, err := expandHome(cfg.Renderer)
		if err != nil {
			return nil, &ValidationError{Path: "renderer", Err: err}
		}
		cfg.Renderer = path
	}
	return cfg, nil
}
