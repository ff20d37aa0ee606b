// go-manual: manual placement daemon for positional audio hosts
// Holds a user-edited position and orientation and serves it to the host on demand
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-manual/internal/config"
	"github.com/teslashibe/go-manual/internal/placement"
	"github.com/teslashibe/go-manual/internal/plugin"
	"github.com/teslashibe/go-manual/internal/server"
)

var (
	version     = "0.3.0"
	configPath  = flag.String("config", "/etc/go-manual/config.yaml", "config file path")
	showVersion = flag.Bool("version", false, "print version and exit")
	debug       = flag.Bool("debug", false, "enable debug logging")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-manual %s\n", version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	missing := errors.Is(err, config.ErrNotFound)
	if err != nil && !missing {
		fmt.Fprintf(os.Stderr, "go-manual: %v\n", err)
		os.Exit(1)
	}

	// Override log level if debug flag is set
	if *debug {
		cfg.Logging.Level = "debug"
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	if missing {
		logger.Warn("config file not found, using defaults", "config", *configPath)
	}

	logger.Info("starting go-manual",
		"version", version,
		"config", *configPath,
		"addr", cfg.Server.Addr(),
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := placement.New(logger)
	p := plugin.New(state)

	srv := server.New(cfg, p, logger, version)

	// Start WebSocket hub in background
	go srv.WSHub().Run(ctx)

	// Start server in background
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	printStartupBanner(cfg, version)

	// Wait for shutdown signal or a fatal server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		cfg.Server.GracefulTimeout,
	)
	defer shutdownCancel()

	// Stop in order: server -> hub -> store
	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}

	cancel()
	state.Close()

	logger.Info("go-manual stopped")
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func printStartupBanner(cfg *config.Config, version string) {
	fmt.Println()
	fmt.Println("🎧 go-manual v" + version)
	fmt.Println("   " + plugin.LongDescription)
	fmt.Println()
	fmt.Printf("🚀 Running at http://%s\n", cfg.Server.Addr())
	fmt.Println()
	fmt.Println("   Endpoints:")
	fmt.Println("   GET  /api/plugin/fetch - Host poll (ok=false until linking is allowed)")
	fmt.Println("   POST /api/plugin/lock  - Host link request")
	fmt.Println("   GET  /api/state        - Editable state")
	fmt.Println("   POST /api/command      - Apply a command")
	fmt.Println("   WS   /api/stream       - Commands in, state events out")
	fmt.Println("   GET  /health           - Health check")
	fmt.Println("   GET  /metrics          - Prometheus metrics")
	fmt.Println()
	fmt.Println("   Press Ctrl+C to stop")
	fmt.Println()
}
