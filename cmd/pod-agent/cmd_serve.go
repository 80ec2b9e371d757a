package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plantpod/pod-agent/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent until interrupted",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer a.Close()

	logger.Info("pod agent started",
		zap.Strings("plants", cfg.PlantIDs()),
		zap.Duration("interval", cfg.Publish.Interval),
		zap.String("input", cfg.Input.Kind),
		zap.String("hardware", cfg.Hardware.Kind))

	if err := a.Run(ctx); err != nil {
		logger.Error("agent stopped", zap.Error(err))
		return err
	}
	logger.Info("pod agent stopped")
	return nil
}
