// Package config handles paint tracker configuration loading and management.
package config

import "time"

// Config holds all settings.
type Config struct {
	Graphics GraphicsConfig `yaml:"graphics"`
	Paint    PaintConfig    `yaml:"paint"`
	Readback ReadbackConfig `yaml:"readback"`
	Debug    DebugConfig    `yaml:"debug"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GraphicsConfig holds display settings for the interactive demo.
type GraphicsConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
}

// PaintConfig holds settings of the paintable surface and its completion tracking.
type PaintConfig struct {
	TargetSize   int     `yaml:"target_size"`   // Render target width and height in pixels
	TargetFormat string  `yaml:"target_format"` // "bgra8" or "rgba16f"
	Threshold    float32 `yaml:"threshold"`     // Completion fraction in [0,1]
	Autocomplete bool    `yaml:"autocomplete"`  // Enables coverage tracking
	FlushReads   bool    `yaml:"flush_reads"`   // Block the render queue until the copy retires
	RequestEvery int     `yaml:"request_every"` // Frames between automatic read requests (0 = only after strokes)
	BrushSize    int     `yaml:"brush_size"`
	IslandInset  float32 `yaml:"island_inset"` // Fraction of the target left outside the UV island on each side
	IslandMask   string  `yaml:"island_mask"`  // Optional TGA/PNG/BMP mask replacing the inset island
}

// ReadbackConfig holds settings of the asynchronous readback pipeline.
type ReadbackConfig struct {
	Device       string        `yaml:"device"`  // "gl" or "soft"
	Workers      int           `yaml:"workers"` // Background mapping/aggregation slots
	FlushTimeout time.Duration `yaml:"flush_timeout"`
	SoftLatency  int           `yaml:"soft_latency"` // Fence polls before the soft device signals
}

// DebugConfig holds developer settings.
type DebugConfig struct {
	SnapshotDir string `yaml:"snapshot_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1024,
			Height:     768,
			Fullscreen: false,
			VSync:      true,
		},
		Paint: PaintConfig{
			TargetSize:   256,
			TargetFormat: "bgra8",
			Threshold:    0.95,
			Autocomplete: true,
			FlushReads:   false,
			RequestEvery: 30,
			BrushSize:    24,
			IslandInset:  0.125,
		},
		Readback: ReadbackConfig{
			Device:       "gl",
			Workers:      2,
			FlushTimeout: 2 * time.Second,
			SoftLatency:  2,
		},
		Debug: DebugConfig{
			SnapshotDir: "snapshots",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
