package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagHeadless  = flag.Bool("headless", false, "Run without a window using the software readback device")
	flagThreshold = flag.Float64("threshold", -1, "Completion threshold in [0,1]")
	flagFlush     = flag.Bool("flush", false, "Flush the render queue on every read")
	flagFormat    = flag.String("format", "", "Render target format (bgra8, rgba16f)")
	flagWorkers   = flag.Int("workers", 0, "Background readback workers")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagHeadless {
		cfg.Readback.Device = "soft"
	}
	if *flagThreshold >= 0 {
		cfg.Paint.Threshold = float32(*flagThreshold)
	}
	if *flagFlush {
		cfg.Paint.FlushReads = true
	}
	if *flagFormat != "" {
		cfg.Paint.TargetFormat = *flagFormat
	}
	if *flagWorkers > 0 {
		cfg.Readback.Workers = *flagWorkers
	}
}
