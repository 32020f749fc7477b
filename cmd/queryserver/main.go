// Command queryserver boots the script-evaluation operation processor:
// it loads configuration, wires up service.Server, and runs until an
// interrupt or terminate signal requests a graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c360/traversalproc/config"
	"github.com/c360/traversalproc/service"
)

const appName = "queryserver"

// cliConfig collects flags with environment variable fallback, mirroring
// the layered-override idiom config.Loader uses for file-based settings.
type cliConfig struct {
	configPath      string
	logLevel        string
	logFormat       string
	shutdownTimeout time.Duration
	showVersion     bool
}

func parseFlags() *cliConfig {
	c := &cliConfig{}
	flag.StringVar(&c.configPath, "config", getEnv("QUERYSERVER_CONFIG", ""), "path to config layer file (JSON)")
	flag.StringVar(&c.logLevel, "log-level", getEnv("QUERYSERVER_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.StringVar(&c.logFormat, "log-format", getEnv("QUERYSERVER_LOG_FORMAT", "json"), "log format: json or text")
	flag.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 15*time.Second, "time to wait for graceful shutdown")
	flag.BoolVar(&c.showVersion, "version", false, "print version and exit")
	flag.Parse()
	return c
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "%s: fatal panic: %v\n", appName, r)
			os.Exit(2)
		}
	}()

	cli := parseFlags()
	if cli.showVersion {
		fmt.Println(appName, "dev")
		return
	}

	logger := newLogger(cli.logLevel, cli.logFormat)

	if err := run(cli, logger); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(cli *cliConfig, logger *slog.Logger) error {
	loader := config.NewLoader()
	if cli.configPath != "" {
		loader.AddLayer(cli.configPath)
	}
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	safeCfg := config.NewSafeConfig(cfg)

	srv, err := service.New(safeCfg, logger)
	if err != nil {
		return fmt.Errorf("construct server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	}

	if err := srv.Stop(cli.shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
