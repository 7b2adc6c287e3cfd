package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Redis describes one supervised redis-server instance.
type Redis struct {
	Port     int    `toml:"port"`
	ConfPath string `toml:"conf"`
	Socket   string `toml:"socket"`
}

// Logging contains daemon log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// LogServer contains configuration for the optional log aggregator child.
type LogServer struct {
	Port         int    `toml:"port"`
	OutputFolder string `toml:"output_folder"`
	RotateMiB    int    `toml:"rotate_mib"`
	ViewerPort   int    `toml:"viewer_port"`
}

// Config centralizes all beacon daemon settings.
type Config struct {
	DBPath string `toml:"db_path"`

	// Port is the repository TCP listener port. Zero selects a free port.
	Port int `toml:"port"`

	// DiscoveryPort is the fixed UDP discovery port.
	DiscoveryPort int `toml:"discovery_port"`

	Redis     Redis `toml:"redis"`
	RedisData Redis `toml:"redis_data"`

	// TangoPort enables the device-database emulator child when non-zero.
	TangoPort int `toml:"tango_port"`

	// WebAppPort enables the configuration web editor child when non-zero.
	WebAppPort int `toml:"webapp_port"`

	LogServer LogServer `toml:"log_server"`

	Logging Logging `toml:"logging"`

	// Filters holds ordered discovery address filters (CIDR or bare IP).
	Filters []string `toml:"filters"`
}

// Load reads the optional TOML file at path and merges it over defaults.
// An empty path yields defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Normalize expands user paths and fills derived defaults that depend on
// other settings. It must run before Validate.
func (c *Config) Normalize() error {
	var err error
	if c.DBPath, err = expandPath(c.DBPath); err != nil {
		return fmt.Errorf("db path: %w", err)
	}
	if c.Redis.ConfPath, err = expandPath(c.Redis.ConfPath); err != nil {
		return fmt.Errorf("redis conf: %w", err)
	}
	if c.RedisData.ConfPath, err = expandPath(c.RedisData.ConfPath); err != nil {
		return fmt.Errorf("redis data conf: %w", err)
	}
	if c.LogServer.OutputFolder, err = expandPath(c.LogServer.OutputFolder); err != nil {
		return fmt.Errorf("log output folder: %w", err)
	}

	if c.DBPath != "" && !filepath.IsAbs(c.DBPath) {
		abs, err := filepath.Abs(c.DBPath)
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
		c.DBPath = abs
	}

	if c.LogServer.Port > 0 && c.LogServer.OutputFolder == "" {
		c.LogServer.OutputFolder = filepath.Join(c.DBPath, "logs")
	}
	if c.LogServer.RotateMiB <= 0 {
		c.LogServer.RotateMiB = defaultLogRotateMiB
	}
	return nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
