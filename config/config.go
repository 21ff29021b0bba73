// Package config handles Kovi configuration loading: YAML file,
// environment variable expansion, validator tags, defaults, and
// hot-reload of the mutable subset. Grounded on the teacher's
// config.go Load/applyDefaults/Validate/DefaultSearchPaths pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// DefaultSearchPaths returns the config file search order. An
// explicit path (from -config) is checked first by FindConfig; this
// is the fallback order otherwise.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "kovi", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // container convention
	paths = append(paths, "/etc/kovi/config.yaml")
	return paths
}

// searchPathsFunc is indirected so tests can point FindConfig at a
// scratch directory instead of a developer machine's real config
// files.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches searchPathsFunc and returns the first
// that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// ServerConfig is spec §3's immutable Server config: host, port,
// optional bearer access token, TLS flag.
type ServerConfig struct {
	Host  string `yaml:"host" validate:"required"`
	Port  int    `yaml:"port" validate:"required,min=1,max=65535"`
	Token string `yaml:"token"`
	TLS   bool   `yaml:"tls"`
}

// AdminConfig names the main admin and optional deputy admins.
type AdminConfig struct {
	MainID  int64   `yaml:"main_id" validate:"required"`
	Deputies []int64 `yaml:"deputies"`
}

// PluginAccessConfig is the on-disk shape of one plugin's access
// policy, mirroring kovi.AccessPolicy.
type PluginAccessConfig struct {
	Mode    string  `yaml:"mode" validate:"omitempty,oneof=disabled whitelist blacklist"`
	Groups  []int64 `yaml:"groups"`
	Friends []int64 `yaml:"friends"`
}

// PluginConfig is the mutable, per-plugin subset of configuration:
// whether it starts enabled and its access-control rules. This is the
// part fsnotify hot-reloads; connection parameters never are.
type PluginConfig struct {
	Enabled bool               `yaml:"enabled"`
	Access  PluginAccessConfig `yaml:"access"`
}

// StoreConfig selects and configures the pluggable persisted-state
// backend (spec §6, "Persisted state").
type StoreConfig struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=bolt sqlite redis"`
	Path    string `yaml:"path"`    // bbolt/sqlite file path
	Addr    string `yaml:"addr"`    // redis address
	Prefix  string `yaml:"prefix"`  // redis key prefix
}

// MetricsConfig configures the optional Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Config holds all Kovi configuration.
type Config struct {
	Server  ServerConfig            `yaml:"server" validate:"required"`
	Admin   AdminConfig             `yaml:"admin" validate:"required"`
	Plugins map[string]PluginConfig `yaml:"plugins" validate:"dive"`
	Store   StoreConfig             `yaml:"store"`
	Metrics MetricsConfig           `yaml:"metrics"`
	DataDir string                  `yaml:"data_dir"`
	LogLevel string                 `yaml:"log_level"`
}

// Load reads configuration from a YAML file, loads a sibling .env (if
// present) first so ${VAR} expansion can see it, expands environment
// variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env")) // optional; absence is not an error

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any
// field without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "bolt"
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "kovi.db")
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Plugins == nil {
		c.Plugins = map[string]PluginConfig{}
	}
	for name, p := range c.Plugins {
		if p.Access.Mode == "" {
			p.Access.Mode = "disabled"
		}
		c.Plugins[name] = p
	}
}

// Validate checks that the configuration is internally consistent. It
// runs struct-tag validation first (go-playground/validator), then
// the checks a tag can't express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a minimal configuration suitable for local
// development against a OneBot server on localhost. All defaults are
// already applied.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 6700},
	}
	cfg.applyDefaults()
	return cfg
}
