package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crawlurl/internal/app/handlers"
	"crawlurl/internal/app/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long:  "List the runs recorded with crawl --history, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			dir, _ := cmd.Flags().GetString("dir")

			store, err := history.Open(dir)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			handlers.PrintRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Number of runs to show (0 for all)")
	cmd.Flags().String("dir", "", "History database directory (XDG data dir by default)")
	return cmd
}
