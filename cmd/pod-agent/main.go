package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plantpod/pod-agent/internal/config"
	"github.com/plantpod/pod-agent/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pod-agent",
	Short: "Plant pod telemetry agent",
	Long: `pod-agent reads the pod's soil, climate and water-contact sensors,
reports telemetry to the collector on a schedule and whenever the pod is
watered, and serves the current readings over HTTP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file (default $"+config.ConfigFileEnv+")")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads .env, the configuration and the logger shared by every command.
func setup() (config.Config, *zap.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger.With(zap.String("pod_id", cfg.PodID)), nil
}
