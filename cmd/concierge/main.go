package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/teilomillet/concierge/config"
	"github.com/teilomillet/concierge/errors"
	"github.com/teilomillet/concierge/server"
)

var (
	configFile = flag.String("config", "concierge.yaml", "Path to configuration file (.yaml or .toml)")
	validate   = flag.Bool("validate", false, "Validate configuration and exit")
	version    = flag.Bool("version", false, "Print version and exit")
)

const Version = "v0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("concierge %s\n", Version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile, *validate, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "concierge: %v\n", err)
		os.Exit(1)
	}
}

// run loads the configuration and serves until ctx is done. With
// validateOnly it reports the configuration as valid and returns.
func run(ctx context.Context, configPath string, validateOnly bool, out io.Writer) error {
	if validateOnly {
		if _, err := config.LoadFile(configPath); err != nil {
			return err
		}
		fmt.Fprintln(out, "Configuration is valid")
		return nil
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		// Sync fails on stdout/stderr on some platforms; nothing to do about it.
		_ = logger.Sync()
	}()
	errors.SetLogger(logger)

	watcher, err := config.NewConfigWatcher(configPath, logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	srv, err := server.NewServer(watcher, logger)
	if err != nil {
		return fmt.Errorf("server initialization failed: %w", err)
	}

	if cfg.Completion.APIKey == "" {
		logger.Warn("No completion API key configured; set OPENAI_API_KEY")
	}

	logger.Info("Starting concierge",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port),
		zap.String("config_path", configPath),
	)
	if err := srv.Start(ctx); err != nil {
		logger.Error("Server error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}
