package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/hyperengineering/refdata/internal/cache"
	"github.com/hyperengineering/refdata/internal/config"
	"github.com/hyperengineering/refdata/internal/record"
	"github.com/hyperengineering/refdata/internal/syncer"
	"github.com/hyperengineering/refdata/internal/types"
)

var (
	pushTable string
	pushLocal bool
)

var pushCmd = &cobra.Command{
	Use:   "push [file]",
	Short: "Replace a table with the records in a JSON file",
	Long: `Replace a table with the records in a JSON file, or stdin when the file
is omitted or "-". The payload is either an array of records or a sync
request object {"table": ..., "data": [...]}.

By default the payload is posted to a running server. With --local it is
loaded straight into the configured database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVarP(&pushTable, "table", "t", "",
		"Target table (default: the payload's table, then "+types.DefaultSyncTable+")")
	pushCmd.Flags().BoolVar(&pushLocal, "local", false,
		"Write to the configured database instead of a server")
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	raw, err := readPayload(cmd, args)
	if err != nil {
		return err
	}
	table, data, err := splitPayload(raw)
	if err != nil {
		return err
	}
	if pushTable != "" {
		table = pushTable
	}
	if table == "" {
		table = types.DefaultSyncTable
	}

	if pushLocal {
		return pushToDatabase(ctx, cmd.OutOrStdout(), table, data)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	resp, err := c.SyncRaw(ctx, table, data)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Synced %s into %s (sync %s, %s)\n",
		plural(int64(resp.RecordsProcessed), "record"), resp.Table, resp.SyncID, formatSeconds(resp.DurationSeconds))
	return nil
}

func pushToDatabase(ctx context.Context, w io.Writer, table string, data []byte) error {
	records, err := decodeRecords(data)
	if err != nil {
		return err
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

	// Database cache entries are shared with running servers, so they
	// are invalidated through the same provider.
	provider, err := cache.NewProvider(cfg.Cache.Backend, s, cfg.Cache.MaxEntries)
	if err != nil {
		return err
	}
	sy := syncer.NewService(s, cache.New(provider), syncer.WithSyncLog(s))

	res, err := sy.Replace(ctx, table, records)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(w, map[string]any{
			"sync_id":            res.SyncID,
			"table":              res.Table,
			"records_processed":  res.Inserted,
			"clear_method":       res.ClearMethod,
			"insert_strategy":    res.Strategy,
			"duration_seconds":   res.Duration.Seconds(),
			"records_per_second": res.RecordsPerSecond,
		})
	}
	fmt.Fprintf(w, "Synced %s into %s (sync %s, %s)\n",
		plural(int64(res.Inserted), "record"), res.Table, res.SyncID, res.Duration.Round(time.Millisecond))
	return nil
}

func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

// splitPayload returns the table named in a sync request object, if any,
// and the raw record array.
func splitPayload(raw []byte) (string, []byte, error) {
	if !gjson.ValidBytes(raw) {
		return "", nil, fmt.Errorf("%w: payload is not valid JSON", record.ErrMalformedInput)
	}
	res := gjson.ParseBytes(raw)
	switch {
	case res.IsArray():
		return "", []byte(res.Raw), nil
	case res.IsObject():
		data := res.Get("data")
		if !data.IsArray() {
			return "", nil, fmt.Errorf("%w: data must be an array", record.ErrMalformedInput)
		}
		return res.Get("table").String(), []byte(data.Raw), nil
	default:
		return "", nil, fmt.Errorf("%w: payload must be an array or an object", record.ErrMalformedInput)
	}
}

func decodeRecords(data []byte) ([]record.WireRecord, error) {
	items := gjson.ParseBytes(data).Array()
	out := make([]record.WireRecord, len(items))
	for i, item := range items {
		if err := out[i].UnmarshalJSON([]byte(item.Raw)); err != nil {
			return nil, fmt.Errorf("data[%d]: %w", i, err)
		}
	}
	return out, nil
}
