package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PROJECTBOARD_STATE_DIR", "PROJECTBOARD_DB", "PROJECTBOARD_SECRET",
		"PROJECTBOARD_SESSION_TTL", "PROJECTBOARD_LOG_LEVEL", "PROJECTBOARD_FEED_POLL",
		"PROJECTBOARD_CONFIG",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Empty(t, cfg.Path)
	assert.Equal(t, filepath.Join(home, ".local", "share", AppName), cfg.General.StateDir)
	assert.Equal(t, filepath.Join(cfg.General.StateDir, AppName+".db"), cfg.General.Database)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 2*time.Second, cfg.Feed.PollInterval)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[general]
state_dir = "~/board"
log_level = "debug"

[auth]
session_ttl = "2h"

[feed]
poll_interval = "500ms"
`), 0o644))

	t.Setenv("PROJECTBOARD_DB", "/tmp/elsewhere.db")
	t.Setenv("PROJECTBOARD_FEED_POLL", "1s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, filepath.Join(home, "board"), cfg.General.StateDir)
	assert.Equal(t, "/tmp/elsewhere.db", cfg.General.Database)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, time.Second, cfg.Feed.PollInterval)
	assert.Equal(t, filepath.Join(home, "board", "session"), cfg.SessionPath())
}

func TestLoadRejectsBadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[general\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaultPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/projectboard/config.toml", DefaultPath())

	t.Setenv("PROJECTBOARD_CONFIG", "/etc/board.toml")
	assert.Equal(t, "/etc/board.toml", DefaultPath())
}

func TestSecretKeyIsGeneratedOnce(t *testing.T) {
	clearEnv(t)
	var cfg Config
	cfg.General.StateDir = t.TempDir()

	a, err := cfg.SecretKey()
	require.NoError(t, err)
	require.Len(t, a, 64)
	b, err := cfg.SecretKey()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cfg.Auth.Secret = "configured"
	c, err := cfg.SecretKey()
	require.NoError(t, err)
	assert.Equal(t, []byte("configured"), c)
}
