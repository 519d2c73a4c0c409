package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/refdata/internal/config"
	"github.com/hyperengineering/refdata/internal/tables"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <table>",
	Short: "Show recent sync attempts of a table from the configured database",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	t, ok := tables.Lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown table %q", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.SyncHistory(ctx, t.Name, historyLimit)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"table":   t.Name,
			"entries": entries,
			"total":   len(entries),
		})
	}

	if len(entries) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No syncs recorded for %s.\n", t.Name)
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "SYNC ID\tSTATUS\tRECORDS\tDURATION\tFINISHED\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			e.ID,
			e.Status,
			e.Records,
			e.Duration,
			e.FinishedAt.Format("2006-01-02 15:04:05"),
			dash(e.Error),
		)
	}
	w.Flush()
	return nil
}
