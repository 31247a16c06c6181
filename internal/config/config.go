// Package config loads projectboard settings from the TOML config file and
// PROJECTBOARD_* environment overrides.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// AppName is used for default config and state paths.
const AppName = "projectboard"

const (
	defaultSessionTTL = 24 * time.Hour
	defaultFeedPoll   = 2 * time.Second
	defaultLogLevel   = "info"
)

// Config is the resolved configuration.
type Config struct {
	General struct {
		StateDir string `toml:"state_dir"`
		Database string `toml:"database"`
		LogLevel string `toml:"log_level"`
	} `toml:"general"`
	Auth struct {
		Secret     string        `toml:"secret"`
		SessionTTL time.Duration `toml:"session_ttl"`
	} `toml:"auth"`
	Feed struct {
		PollInterval time.Duration `toml:"poll_interval"`
	} `toml:"feed"`

	// Path is the config file that was read, empty when none existed.
	Path string `toml:"-"`
}

// envOverrides are applied on top of the file.
type envOverrides struct {
	StateDir   string        `env:"PROJECTBOARD_STATE_DIR"`
	Database   string        `env:"PROJECTBOARD_DB"`
	Secret     string        `env:"PROJECTBOARD_SECRET"`
	SessionTTL time.Duration `env:"PROJECTBOARD_SESSION_TTL"`
	LogLevel   string        `env:"PROJECTBOARD_LOG_LEVEL"`
	FeedPoll   time.Duration `env:"PROJECTBOARD_FEED_POLL"`
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	if p := os.Getenv("PROJECTBOARD_CONFIG"); p != "" {
		return p
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, AppName, "config.toml")
}

// Load reads the config file at path (DefaultPath when empty), applies
// environment overrides and fills defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		cfg.Path = path
	}

	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if o.StateDir != "" {
		cfg.General.StateDir = o.StateDir
	}
	if o.Database != "" {
		cfg.General.Database = o.Database
	}
	if o.LogLevel != "" {
		cfg.General.LogLevel = o.LogLevel
	}
	if o.Secret != "" {
		cfg.Auth.Secret = o.Secret
	}
	if o.SessionTTL > 0 {
		cfg.Auth.SessionTTL = o.SessionTTL
	}
	if o.FeedPoll > 0 {
		cfg.Feed.PollInterval = o.FeedPoll
	}

	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	c.General.StateDir = expandHome(c.General.StateDir)
	if c.General.StateDir == "" {
		home, _ := os.UserHomeDir()
		c.General.StateDir = filepath.Join(home, ".local", "share", AppName)
	}
	c.General.Database = expandHome(c.General.Database)
	if c.General.Database == "" {
		c.General.Database = filepath.Join(c.General.StateDir, AppName+".db")
	}
	if c.General.LogLevel == "" {
		c.General.LogLevel = defaultLogLevel
	}
	if c.Auth.SessionTTL <= 0 {
		c.Auth.SessionTTL = defaultSessionTTL
	}
	if c.Feed.PollInterval <= 0 {
		c.Feed.PollInterval = defaultFeedPoll
	}
}

// SessionPath returns where the signed-in session token is kept.
func (c Config) SessionPath() string {
	return filepath.Join(c.General.StateDir, "session")
}

// LogPath returns the log file path.
func (c Config) LogPath() string {
	return filepath.Join(c.General.StateDir, AppName+".log")
}

// SecretKey returns the session signing key. Without a configured secret a
// random key is generated once and kept in the state dir.
func (c Config) SecretKey() ([]byte, error) {
	if c.Auth.Secret != "" {
		return []byte(c.Auth.Secret), nil
	}
	path := filepath.Join(c.General.StateDir, "secret")
	if b, err := os.ReadFile(path); err == nil && len(strings.TrimSpace(string(b))) > 0 {
		return []byte(strings.TrimSpace(string(b))), nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	key := hex.EncodeToString(buf)
	if err := os.MkdirAll(c.General.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write secret: %w", err)
	}
	return []byte(key), nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
