package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Graphics.Width != 1024 {
		t.Errorf("expected width 1024, got %d", cfg.Graphics.Width)
	}
	if !cfg.Graphics.VSync {
		t.Error("expected vsync to be true by default")
	}

	if cfg.Paint.Threshold != 0.95 {
		t.Errorf("expected threshold 0.95, got %f", cfg.Paint.Threshold)
	}
	if !cfg.Paint.Autocomplete {
		t.Error("expected autocomplete to be enabled by default")
	}
	if cfg.Paint.FlushReads {
		t.Error("expected flush_reads to be false by default")
	}
	if cfg.Paint.TargetFormat != "bgra8" {
		t.Errorf("expected target format bgra8, got %s", cfg.Paint.TargetFormat)
	}

	if cfg.Readback.Device != "gl" {
		t.Errorf("expected device gl, got %s", cfg.Readback.Device)
	}
	if cfg.Readback.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Readback.Workers)
	}
	if cfg.Readback.FlushTimeout != 2*time.Second {
		t.Errorf("expected flush timeout 2s, got %v", cfg.Readback.FlushTimeout)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "paintable.yaml")

	yamlContent := `
graphics:
  width: 1920
  height: 1080
  vsync: false

paint:
  target_size: 512
  target_format: rgba16f
  threshold: 0.8
  autocomplete: false
  flush_reads: true

readback:
  device: soft
  workers: 4
  flush_timeout: 500ms
  soft_latency: 5

debug:
  snapshot_dir: "/tmp/shots"

logging:
  level: "debug"
  log_file: "paint.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Graphics.Width != 1920 {
		t.Errorf("expected width 1920, got %d", cfg.Graphics.Width)
	}
	if cfg.Graphics.VSync {
		t.Error("expected vsync to be false")
	}
	if cfg.Paint.TargetSize != 512 {
		t.Errorf("expected target size 512, got %d", cfg.Paint.TargetSize)
	}
	if cfg.Paint.TargetFormat != "rgba16f" {
		t.Errorf("expected target format rgba16f, got %s", cfg.Paint.TargetFormat)
	}
	if cfg.Paint.Threshold != 0.8 {
		t.Errorf("expected threshold 0.8, got %f", cfg.Paint.Threshold)
	}
	if cfg.Paint.Autocomplete {
		t.Error("expected autocomplete to be false")
	}
	if !cfg.Paint.FlushReads {
		t.Error("expected flush_reads to be true")
	}
	// Untouched keys keep their defaults
	if cfg.Paint.BrushSize != 24 {
		t.Errorf("expected default brush size 24, got %d", cfg.Paint.BrushSize)
	}
	if cfg.Readback.Device != "soft" {
		t.Errorf("expected device soft, got %s", cfg.Readback.Device)
	}
	if cfg.Readback.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Readback.Workers)
	}
	if cfg.Readback.FlushTimeout != 500*time.Millisecond {
		t.Errorf("expected flush timeout 500ms, got %v", cfg.Readback.FlushTimeout)
	}
	if cfg.Debug.SnapshotDir != "/tmp/shots" {
		t.Errorf("expected snapshot dir /tmp/shots, got %s", cfg.Debug.SnapshotDir)
	}
	if cfg.Logging.LogFile != "paint.log" {
		t.Errorf("expected log file 'paint.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
paint:
  threshold: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/paintable.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"threshold above one", func(c *Config) { c.Paint.Threshold = 1.5 }, true},
		{"negative threshold", func(c *Config) { c.Paint.Threshold = -0.1 }, true},
		{"threshold bounds", func(c *Config) { c.Paint.Threshold = 1 }, false},
		{"zero target", func(c *Config) { c.Paint.TargetSize = 0 }, true},
		{"unknown format", func(c *Config) { c.Paint.TargetFormat = "r8" }, true},
		{"half float format", func(c *Config) { c.Paint.TargetFormat = "rgba16f" }, false},
		{"unknown device", func(c *Config) { c.Readback.Device = "vulkan" }, true},
		{"no workers", func(c *Config) { c.Readback.Workers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("HOME", tmpDir)

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "paintable.yaml")
	if err := os.WriteFile(configPath, []byte("paint:\n  threshold: 0.5\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Error("expected to find paintable.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "headless flag",
			setup: func() { *flagHeadless = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Readback.Device != "soft" {
					t.Errorf("expected soft device, got %s", cfg.Readback.Device)
				}
			},
			teardown: func() { *flagHeadless = false },
		},
		{
			name:  "threshold flag",
			setup: func() { *flagThreshold = 0.5 },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Paint.Threshold != 0.5 {
					t.Errorf("expected threshold 0.5, got %f", cfg.Paint.Threshold)
				}
			},
			teardown: func() { *flagThreshold = -1 },
		},
		{
			name:  "flush flag",
			setup: func() { *flagFlush = true },
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Paint.FlushReads {
					t.Error("expected flush_reads with flush flag")
				}
			},
			teardown: func() { *flagFlush = false },
		},
		{
			name: "format and workers flags",
			setup: func() {
				*flagFormat = "rgba16f"
				*flagWorkers = 8
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Paint.TargetFormat != "rgba16f" {
					t.Errorf("expected rgba16f, got %s", cfg.Paint.TargetFormat)
				}
				if cfg.Readback.Workers != 8 {
					t.Errorf("expected 8 workers, got %d", cfg.Readback.Workers)
				}
			},
			teardown: func() {
				*flagFormat = ""
				*flagWorkers = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)

			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "paintable.yaml")

	yamlContent := `
paint:
  threshold: 0.6
  target_size: 128
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagThreshold = 0.9
	defer func() {
		*flagConfig = ""
		*flagThreshold = -1
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Threshold from flag, not file
	if cfg.Paint.Threshold != float32(0.9) {
		t.Errorf("expected threshold 0.9 from flag, got %f", cfg.Paint.Threshold)
	}
	// Target size from file since no flag override
	if cfg.Paint.TargetSize != 128 {
		t.Errorf("expected target size 128 from file, got %d", cfg.Paint.TargetSize)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "paintable.yaml")
	if err := os.WriteFile(configPath, []byte("paint:\n  threshold: 3\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	defer func() { *flagConfig = "" }()

	if _, err := Load(); err == nil {
		t.Error("expected validation error for threshold 3")
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "paintable.yaml")

	cfg := Default()
	cfg.Paint.Threshold = 0.7
	cfg.Readback.Device = "soft"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatalf("failed to reload saved config: %v", err)
	}
	if loaded.Paint.Threshold != 0.7 || loaded.Readback.Device != "soft" {
		t.Errorf("saved values not preserved: %+v", loaded.Paint)
	}
}
