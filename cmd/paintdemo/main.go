// Package main is the entry point for the paint coverage demo.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/Faultbox/paintable/internal/config"
	"github.com/Faultbox/paintable/internal/game"
	"github.com/Faultbox/paintable/internal/logger"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== Paintable ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	if cfg.Readback.Device == "soft" {
		os.Exit(runHeadless(cfg))
	}

	// Create and run game
	g, err := game.New(cfg)
	if err != nil {
		logger.Error("failed to create game", zap.Error(err))
		os.Exit(1)
	}
	defer g.Close()

	// Run the game loop
	if err := g.Run(); err != nil {
		logger.Error("game error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("game closed normally")
}

func runHeadless(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	h, err := game.NewHeadless(cfg)
	if err != nil {
		logger.Error("failed to create headless run", zap.Error(err))
		logger.Sync()
		return 1
	}
	if err := h.Run(ctx); err != nil {
		logger.Error("headless run failed", zap.Error(err))
		logger.Sync()
		return 1
	}
	logger.Info("headless run finished")
	logger.Sync()
	return 0
}
