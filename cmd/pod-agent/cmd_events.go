package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/plantpod/pod-agent/internal/store"
)

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent water-contact transitions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		// Only the store: no hardware, no broker session.
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.InitSchema(cmd.Context()); err != nil {
			return err
		}

		events, err := st.Recent(cmd.Context(), eventsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "AT\tSTATE\tSOURCE")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.At.Local().Format(time.RFC3339), e.State, e.Source)
		}
		return w.Flush()
	},
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "number of events to show")
	rootCmd.AddCommand(eventsCmd)
}
