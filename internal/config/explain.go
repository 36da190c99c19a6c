package config

import "fmt"

// Paths lists every path Explain accepts, in display order.
func Paths() []string {
	return []string{
		"renderer",
		"workdir",
		"args",
		"scale",
		"channel",
		"handoff",
		"stop_grace_ms",
		"stop_term_ms",
		"max_payload_bytes",
		"log_level",
		"log_format",
		"window.width",
		"window.height",
		"window.title",
	}
}

// Explain returns the effective value at the given YAML-like path and its source.
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}

	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault, Name: "defaults"}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	switch path {
	case "renderer":
		return cfg.Renderer, nil
	case "workdir":
		return cfg.WorkDir, nil
	case "args":
		return cfg.Args, nil
	case "scale":
		return cfg.Scale, nil
	case "channel":
		return cfg.Channel, nil
	case "handoff":
		return string(cfg.Handoff), nil
	case "stop_grace_ms":
		return cfg.StopGraceMs, nil
	case "stop_term_ms":
		return cfg.StopTermMs, nil
	case "max_payload_bytes":
		return cfg.MaxPayloadBytes, nil
	case "log_level":
		return cfg.LogLevel, nil
	case "log_format":
		return cfg.LogFormat, nil
	case "window.width":
		return cfg.Window.Width, nil
	case "window.height":
		return cfg.Window.Height, nil
	case "window.title":
		return cfg.Window.Title, nil
	}
	return nil, fmt.Errorf("unknown path: %s", path)
}

// FormatSource renders a source for display.
func FormatSource(src Source) string {
	switch src.Kind {
	case SourceFile:
		if src.Line > 0 {
			return fmt.Sprintf("%s:%d", src.File, src.Line)
		}
		return src.File
	case SourceDefault:
		return "default"
	}
	return string(src.Kind)
}
