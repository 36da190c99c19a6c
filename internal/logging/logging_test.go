package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggerIsSilent(t *testing.T) {
	SetLogger(nil)
	assert.False(t, Logger().Enabled(t.Context(), slog.LevelError))
}

func TestSetLoggerSwapsShared(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "debug", Format: "text", Output: &buf})
	require.NoError(t, err)

	SetLogger(l)
	t.Cleanup(func() { SetLogger(nil) })

	Logger().Info("surface created", "id", 3)
	assert.Contains(t, buf.String(), "surface created")
	assert.Contains(t, buf.String(), "id=3")
}

func TestAutoFormatPicksJSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Format: "auto", Output: &buf})
	require.NoError(t, err)

	l.Info("hello", "k", "v")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
