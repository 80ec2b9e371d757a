package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/plantpod/pod-agent/internal/app"
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Print the current readings as JSON",
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

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(a.Assembler.Current(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
}
