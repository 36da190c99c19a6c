package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Handoff != HandoffAuto {
		t.Fatalf("expected handoff auto, got %q", cfg.Handoff)
	}
	if cfg.StopGrace().Milliseconds() != DefaultStopGraceMs {
		t.Fatalf("expected grace %dms, got %v", DefaultStopGraceMs, cfg.StopGrace())
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(res.Files) != 0 {
		t.Fatalf("expected no files, got %v", res.Files)
	}
	if res.Config.Channel != "pipes" {
		t.Fatalf("expected channel pipes, got %q", res.Config.Channel)
	}
}

func TestLoadFromPath_EmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "# empty\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.MaxPayloadBytes != DefaultMaxPayloadBytes {
		t.Fatalf("expected max payload %d, got %d", DefaultMaxPayloadBytes, res.Config.MaxPayloadBytes)
	}
}

func TestLoadFromPath_OverridesAndExplain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, strings.Join([]string{
		"renderer: /opt/ui/renderer",
		"scale: 2",
		"channel: Socket",
		"handoff: global",
		"window:",
		"  width: 1024",
		"",
	}, "\n"))

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := res.Config
	if cfg.Renderer != "/opt/ui/renderer" || cfg.Scale != 2 || cfg.Channel != "socket" || cfg.Handoff != HandoffGlobal {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Window.Width != 1024 || cfg.Window.Height != DefaultWindowHeight {
		t.Fatalf("unexpected window: %+v", cfg.Window)
	}

	val, src, err := Explain(res, "window.width")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if val != 1024 || src.Kind != SourceFile || src.Line != 6 {
		t.Fatalf("unexpected explain result: %v %+v", val, src)
	}
	_, src, err = Explain(res, "window.height")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if src.Kind != SourceDefault {
		t.Fatalf("expected default source, got %+v", src)
	}
	if _, _, err := Explain(res, "nope"); err == nil {
		t.Fatalf("expected unknown path error")
	}
}

func TestLoadFromPath_StrictUnknownKeyErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "renderr: /bin/true\n")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "renderr") {
		t.Fatalf("expected error to mention unknown key, got %v", err)
	}
}

func TestLoadFromPath_ValidationErrorHasSourceContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "log_level: info\nmax_payload_bytes: 4194304\n")

	_, err := LoadFromPath(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Path != "max_payload_bytes" || verr.Source.Line != 2 {
		t.Fatalf("unexpected validation error: %+v", verr)
	}
	if !strings.Contains(err.Error(), path) && !strings.Contains(err.Error(), "config.yaml:2") {
		t.Fatalf("expected file context in %q", err.Error())
	}
}

func TestLoadFromPath_IncludeDirectoryOrderAndMainOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "conf.d", "10-base.yaml"), "scale: 1.5\nchannel: socket\n")
	writeFile(t, filepath.Join(dir, "conf.d", "20-more.yaml"), "scale: 1.75\n")
	main := filepath.Join(dir, "config.yaml")
	writeFile(t, main, "include: conf.d\nchannel: pipes\n")

	res, err := LoadFromPath(main)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.Scale != 1.75 {
		t.Fatalf("expected later include to win, got %v", res.Config.Scale)
	}
	if res.Config.Channel != "pipes" {
		t.Fatalf("expected main file to override includes, got %q", res.Config.Channel)
	}
	if len(res.Files) != 3 {
		t.Fatalf("expected 3 files, got %v", res.Files)
	}
}

func TestLoadFromPath_IncludeCycleDetection(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	writeFile(t, a, "include: b.yaml\n")
	writeFile(t, b, "include: a.yaml\n")

	_, err := LoadFromPath(a)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"scale":             func(c *Config) { c.Scale = 0 },
		"channel":           func(c *Config) { c.Channel = "shm" },
		"handoff":           func(c *Config) { c.Handoff = "mach" },
		"stop_grace_ms":     func(c *Config) { c.StopGraceMs = -1 },
		"stop_term_ms":      func(c *Config) { c.StopTermMs = -1 },
		"max_payload_bytes": func(c *Config) { c.MaxPayloadBytes = 0 },
		"log_level":         func(c *Config) { c.LogLevel = "trace" },
		"log_format":        func(c *Config) { c.LogFormat = "xml" },
		"window.width":      func(c *Config) { c.Window.Width = 0 },
		"window.height":     func(c *Config) { c.Window.Height = 40000 },
	}
	for path, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		err := cfg.Validate()
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Path != path {
			t.Fatalf("%s: expected validation error for path, got %v", path, err)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Renderer = "/usr/local/bin/ui"
	cfg.Handoff = HandoffRendezvous
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.Renderer != cfg.Renderer || res.Config.Handoff != HandoffRendezvous {
		t.Fatalf("unexpected round trip: %+v", res.Config)
	}
}

func TestDefaultConfigPath_EnvOverride(t *testing.T) {
	t.Setenv(ConfigPathEnv, "/etc/framelink.yaml")
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if path != "/etc/framelink.yaml" {
		t.Fatalf("unexpected path %q", path)
	}

	t.Setenv(ConfigPathEnv, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	path, _ = DefaultConfigPath()
	if path != filepath.Join("/xdg", "framelink", "config.yaml") {
		t.Fatalf("unexpected path %q", path)
	}
}
