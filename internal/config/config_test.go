package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultBackendURL, cfg.BackendURL)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, time.Second, cfg.Debounce())
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.Advertise)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	require.NoError(t, Save(path, &Config{UserID: "alice", DebounceMS: 250, LogLevel: "debug"}))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Save(path, &Config{BackendURL: "http://file:1", DebounceMS: 250}))

	t.Setenv("STUDYBOARD_BACKEND_URL", "http://env:2")
	t.Setenv("STUDYBOARD_DEBOUNCE_MS", "42")
	t.Setenv("STUDYBOARD_ADVERTISE", "true")
	t.Setenv("STUDYBOARD_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env:2", cfg.BackendURL)
	assert.Equal(t, 42*time.Millisecond, cfg.Debounce())
	assert.True(t, cfg.Advertise)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestInvalidEnvFallsThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Save(path, &Config{DebounceMS: 250}))

	t.Setenv("STUDYBOARD_DEBOUNCE_MS", "soon")
	t.Setenv("STUDYBOARD_ADVERTISE", "maybe")
	t.Setenv("STUDYBOARD_LOG_LEVEL", "loud")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce())
	assert.False(t, cfg.Advertise)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestZeroDebounceEnvFallsThrough(t *testing.T) {
	t.Setenv("STUDYBOARD_DEBOUNCE_MS", "0")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Debounce())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", true)
	log.Info("hidden")
	log.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, ok := ParseLevel("verbose")
	assert.False(t, ok)
}
