package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/refdata/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long:  "Connects to the configured database, applies pending migrations and prints the schema version.",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	version, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"driver":  s.Dialect().Name,
			"version": version,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Database is at version %d (%s)\n", version, s.Dialect().Name)
	return nil
}
