package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh-cache",
	Short: "Drop every cached response on a server",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	resp, err := c.RefreshCache(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	return nil
}
