// Package main is the entry point for a regioncore node.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dshills/regioncore/internal/config"
	"github.com/dshills/regioncore/internal/plugins"
	"github.com/dshills/regioncore/internal/server"
	"github.com/dshills/regioncore/internal/telemetry"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	configPath string
	logLevel   string
	check      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	if opts.check {
		fmt.Println("configuration ok")
		return 0
	}

	logger, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		return 1
	}

	// Handle signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
		NodeID:      cfg.Server.NodeID,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	srv, err := server.New(cfg,
		server.WithLogger(logger.Logger),
		server.WithLevelSetter(logger.SetLevel),
		server.WithConfigPath(opts.configPath),
		server.WithTracerProvider(tp),
	)
	if err != nil {
		logger.Error("server setup failed", "error", err)
		return 1
	}

	builtins, err := plugins.New(ctx, cfg.Plugins.Builtin, plugins.Options{
		Logger:         logger.Logger,
		HeartbeatEvery: cfg.Plugins.HeartbeatEvery,
		ScriptTimeout:  cfg.Plugins.ScriptTimeout.Std(),
	})
	if err != nil {
		logger.Error("built-in plugins failed", "error", err)
		return 1
	}
	for _, p := range builtins {
		if _, err := srv.AddPlugin(ctx, p); err != nil {
			logger.Error("plugin register failed", "plugin", p.Name(), "error", err)
			return 1
		}
	}
	if cfg.Plugins.Dir != "" {
		n, err := srv.LoadScripts(ctx, cfg.Plugins.Dir)
		if err != nil {
			logger.Error("script directory unreadable", "dir", cfg.Plugins.Dir, "error", err)
			return 1
		}
		logger.Info("scripts loaded", "dir", cfg.Plugins.Dir, "count", n)
	}

	logger.Info("regioncore starting", "version", version, "commit", commit)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server failed", "error", err)
		return 1
	}
	return 0
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file (.toml, .yaml)")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	flag.BoolVar(&opts.check, "check", false, "Validate the configuration and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "regioncore - region node plugin host\n\n")
		fmt.Fprintf(os.Stderr, "Usage: regioncore [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables prefixed %s override file values,\n", config.EnvPrefix)
		fmt.Fprintf(os.Stderr, "e.g. %sSERVER_TICK_RATE=30.\n", config.EnvPrefix)
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("regioncore %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	return opts
}
