package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const appDirName = "clique"

type Config struct {
	API      APIConfig      `yaml:"api"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Seen     SeenConfig     `yaml:"seen"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	RefreshPath    string        `yaml:"refresh_path"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
	// LogoutOnTransientRefreshFailure ends the session even when the refresh
	// call failed for network or server reasons.
	LogoutOnTransientRefreshFailure bool `yaml:"logout_on_transient_refresh_failure"`
}

type RealtimeConfig struct {
	URL            string        `yaml:"url"`
	ReconnectBase  time.Duration `yaml:"reconnect_base"`
	ReconnectMax   time.Duration `yaml:"reconnect_max"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	HandshakeLimit time.Duration `yaml:"handshake_timeout"`
}

type SeenConfig struct {
	Threshold float64       `yaml:"threshold"`
	Dwell     time.Duration `yaml:"dwell"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://127.0.0.1:4000",
			Timeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			RefreshPath:    "/users/refresh-token",
			RefreshTimeout: 15 * time.Second,
		},
		Realtime: RealtimeConfig{
			URL:            "ws://127.0.0.1:4000/ws",
			ReconnectBase:  time.Second,
			ReconnectMax:   30 * time.Second,
			PingInterval:   30 * time.Second,
			PongTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			HandshakeLimit: 10 * time.Second,
		},
		Seen: SeenConfig{
			Threshold: 0.6,
			Dwell:     2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = defaultStateDir()
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.Storage.Dir, "clique.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CLIQUE_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("CLIQUE_WS_URL"); v != "" {
		c.Realtime.URL = v
	}
	if v := os.Getenv("CLIQUE_STATE_DIR"); v != "" {
		c.Storage.Dir = v
	}
}

// Validate reports settings the client cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url must be set")
	}
	if c.Seen.Threshold <= 0 || c.Seen.Threshold > 1 {
		return fmt.Errorf("seen.threshold must be in (0, 1], got %v", c.Seen.Threshold)
	}
	if c.Seen.Dwell <= 0 {
		return fmt.Errorf("seen.dwell must be positive, got %v", c.Seen.Dwell)
	}
	if c.Realtime.ReconnectMax < c.Realtime.ReconnectBase {
		return fmt.Errorf("realtime.reconnect_max (%v) is below reconnect_base (%v)",
			c.Realtime.ReconnectMax, c.Realtime.ReconnectBase)
	}
	return nil
}

// DBPath is the buntdb file holding the persisted session and cookies.
func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.Dir, "clique.db")
}

// defaultStateDir returns ~/.local/state/clique, respecting XDG_STATE_HOME.
func defaultStateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
