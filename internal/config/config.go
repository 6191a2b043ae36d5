// Package config loads the daemon configuration from config.yaml and
// VERGATE_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	API     APIConfig     `koanf:"api"`
	Catalog CatalogConfig `koanf:"catalog"`
	Storage StorageConfig `koanf:"storage"`
	Debug   DebugConfig   `koanf:"debug"`
}

type ServerConfig struct {
	SocketPath     string `koanf:"socket_path"`
	DescriptorPath string `koanf:"descriptor_path"`
	MaxConns       int    `koanf:"max_conns"`
	ReadTimeout    string `koanf:"read_timeout"`  // Duration string like "60s"
	WriteTimeout   string `koanf:"write_timeout"` // Duration string like "60s"
}

type APIConfig struct {
	BaseURL        string `koanf:"base_url"`
	DefaultVersion string `koanf:"default_version"`
	ProbePath      string `koanf:"probe_path"`
	VersionField   string `koanf:"version_field"`
	Timeout        string `koanf:"timeout"` // Duration string like "30s"
	UserAgent      string `koanf:"user_agent"`
}

type CatalogConfig struct {
	Root string `koanf:"root"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// DebugConfig controls the optional status HTTP server. Port 0 disables it.
type DebugConfig struct {
	Port int `koanf:"port"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml (when present), overlays environment variables, and
// applies defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// A missing file is fine; env vars and defaults take over.
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("VERGATE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "VERGATE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	defaults := map[string]any{
		"server.socket_path":     ".vergate.sock",
		"server.descriptor_path": ".vergate.json",
		"server.max_conns":       64,
		"server.read_timeout":    "60s",
		"server.write_timeout":   "60s",
		"api.default_version":    "1.0",
		"api.version_field":      "version",
		"api.timeout":            "30s",
		"catalog.root":           "./catalog",
		"storage.type":           "memory",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.API.BaseURL = substituteEnvVars(cfg.API.BaseURL)
	return &cfg, nil
}

// Duration parses a duration config value, falling back when empty or
// malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate checks the settings the daemon cannot start without.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path is required for sqlite storage")
	}
	if c.Storage.Type != "memory" && c.Storage.Type != "sqlite" {
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
