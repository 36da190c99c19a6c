package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawWindow struct {
	Width  *int    `yaml:"width"`
	Height *int    `yaml:"height"`
	Title  *string `yaml:"title"`
}

// RawConfig is one YAML file as written: unset keys stay nil so files can
// be layered.
type RawConfig struct {
	Include         IncludeList  `yaml:"include"`
	Renderer        *string      `yaml:"renderer"`
	WorkDir         *string      `yaml:"workdir"`
	Args            []string     `yaml:"args"`
	Scale           *float64     `yaml:"scale"`
	Channel         *string      `yaml:"channel"`
	Handoff         *HandoffMode `yaml:"handoff"`
	StopGraceMs     *int         `yaml:"stop_grace_ms"`
	StopTermMs      *int         `yaml:"stop_term_ms"`
	MaxPayloadBytes *int         `yaml:"max_payload_bytes"`
	LogLevel        *string      `yaml:"log_level"`
	LogFormat       *string      `yaml:"log_format"`
	Window          *RawWindow   `yaml:"window"`
}

func (r RawConfig) merge(overlay RawConfig) RawConfig {
	out := r
	out.Include = nil
	if overlay.Renderer != nil {
		out.Renderer = overlay.Renderer
	}
	if overlay.WorkDir != nil {
		out.WorkDir = overlay.WorkDir
	}
	if overlay.Args != nil {
		out.Args = overlay.Args
	}
	if overlay.Scale != nil {
		out.Scale = overlay.Scale
	}
	if overlay.Channel != nil {
		out.Channel = overlay.Channel
	}
	if overlay.Handoff != nil {
		out.Handoff = overlay.Handoff
	}
	if overlay.StopGraceMs != nil {
		out.StopGraceMs = overlay.StopGraceMs
	}
	if overlay.StopTermMs != nil {
		out.StopTermMs = overlay.StopTermMs
	}
	if overlay.MaxPayloadBytes != nil {
		out.MaxPayloadBytes = overlay.MaxPayloadBytes
	}
	if overlay.LogLevel != nil {
		out.LogLevel = overlay.LogLevel
	}
	if overlay.LogFormat != nil {
		out.LogFormat = overlay.LogFormat
	}
	if overlay.Window != nil {
		w := RawWindow{}
		if out.Window != nil {
			w = *out.Window
		}
		if overlay.Window.Width != nil {
			w.Width = overlay.Window.Width
		}
		if overlay.Window.Height != nil {
			w.Height = overlay.Window.Height
		}
		if overlay.Window.Title != nil {
			w.Title = overlay.Window.Title
		}
		out.Window = &w
	}
	return out
}
