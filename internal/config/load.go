package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	cfg := Default()

	// Explicit path takes priority over the standard locations
	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that the rest of the program relies on.
func (c *Config) Validate() error {
	if c.Paint.Threshold < 0 || c.Paint.Threshold > 1 {
		return fmt.Errorf("paint.threshold must be in [0,1], got %v", c.Paint.Threshold)
	}
	if c.Paint.TargetSize < 1 {
		return fmt.Errorf("paint.target_size must be positive, got %d", c.Paint.TargetSize)
	}
	switch c.Paint.TargetFormat {
	case "bgra8", "rgba16f":
	default:
		return fmt.Errorf("paint.target_format must be bgra8 or rgba16f, got %q", c.Paint.TargetFormat)
	}
	switch c.Readback.Device {
	case "gl", "soft":
	default:
		return fmt.Errorf("readback.device must be gl or soft, got %q", c.Readback.Device)
	}
	if c.Readback.Workers < 1 {
		return fmt.Errorf("readback.workers must be at least 1, got %d", c.Readback.Workers)
	}
	return nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./paintable.yaml",
		filepath.Join(ConfigDir(), "paintable.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Paintable")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Paintable")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "paintable")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "paintable")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
