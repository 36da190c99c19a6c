package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout bytes.Buffer
	stderr := &syncBuffer{}
	cmd.SetOut(&stdout)
	cmd.SetErr(stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// syncBuffer is written by the logger and the renderer's stderr copier at once.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "framelink", "config.yaml")

	out, _, err := runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("config validate without file: %v", err)
	}
	requireContains(t, out, "defaults were used")
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, []string{"config", "init", "--path", target, "--renderer", "/usr/bin/true"}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatalf("expected init to refuse an existing file")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+target)
	requireContains(t, out, "No renderer configured")
}

func TestConfigPrintShowsSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "renderer: /opt/demo\nscale: 2\nwindow:\n  title: demo\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, _, err := runCLI(t, []string{"config", "print"}, path)
	if err != nil {
		t.Fatalf("config print: %v", err)
	}
	requireContains(t, out, "/opt/demo")
	requireContains(t, out, path+":2")
	requireContains(t, out, "window.title")
	requireContains(t, out, "default")
}

func TestConfigValidateRejectsBadValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("channel: carrier-pigeon\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, err := runCLI(t, []string{"config", "validate"}, path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	requireContains(t, err.Error(), "channel")
}

func TestConfigPath(t *testing.T) {
	t.Setenv("FRAMELINK_CONFIG", "/tmp/framelink-test.yaml")
	out, _, err := runCLI(t, []string{"config", "path"}, "")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != "/tmp/framelink-test.yaml" {
		t.Fatalf("unexpected path %q", out)
	}
}

func TestVersionSkipsBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("nonsense: true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, _, err := runCLI(t, []string{"version"}, path)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "framelink "+version)
}

func TestRunWithoutRenderer(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yaml")
	_, _, err := runCLI(t, []string{"run", "--headless"}, missing)
	if !errors.Is(err, errNoRenderer) {
		t.Fatalf("expected errNoRenderer, got %v", err)
	}
}
