package main

import (
	"github.com/spf13/cobra"

	"github.com/plantpod/pod-agent/internal/app"
)

var postWatered bool

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Publish a single telemetry payload",
	Long: `post assembles one payload and sends it to the collector. The outcome is
logged; a rejected or failed post does not change the exit status. The MQTT and
Influx mirrors are left to the running daemon.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		a, err := app.New(cmd.Context(), cfg, logger, app.WithoutMirrors())
		if err != nil {
			return err
		}
		defer a.Close()

		a.Publisher.Publish(cmd.Context(), postWatered)
		return nil
	},
}

func init() {
	postCmd.Flags().BoolVar(&postWatered, "watered", false, "mark the payload as a watering report")
	rootCmd.AddCommand(postCmd)
}
