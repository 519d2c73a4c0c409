package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show table counts, last syncs and cache statistics of a server",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	resp, err := c.Status(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database: %s (connected: %t, migration %d)\n",
		resp.Database.Driver, resp.Database.Connected, resp.Database.MigrationVersion)

	names := make([]string, 0, len(resp.Tables))
	for name := range resp.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	w := newTabWriter(out)
	fmt.Fprintln(w, "TABLE\tENTITY\tRECORDS\tLAST SYNC\tSYNC ID")
	for _, name := range names {
		ts := resp.Tables[name]
		last, id := "-", "-"
		if ts.LastSync != nil {
			last = ts.LastSync.FinishedAt
			id = ts.LastSync.SyncID
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", name, ts.Entity, ts.TotalRecords, last, id)
	}
	w.Flush()

	cs := resp.Cache
	fmt.Fprintf(out, "Cache: %s, %d entries, %d hits, %d misses, %d invalidations\n",
		cs.Provider, cs.Entries, cs.Hits, cs.Misses, cs.Invalidations)
	return nil
}
