package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/refdata/internal/tables"
)

var tablesCmd = &cobra.Command{
	Use:   "tables [table]",
	Short: "List the reference tables and their columns",
	Long:  "Lists every syncable table. With a table name, prints its columns.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTables,
}

func runTables(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		t, ok := tables.Lookup(args[0])
		if !ok {
			t, ok = tables.LookupEntity(args[0])
		}
		if !ok {
			return fmt.Errorf("unknown table %q (known: %s)", args[0], strings.Join(tables.Names(), ", "))
		}
		return printColumns(cmd, t)
	}

	all := tables.All()
	if jsonOutput {
		items := make([]map[string]any, len(all))
		for i, t := range all {
			items[i] = tableJSON(t)
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"tables": items,
			"total":  len(items),
		})
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "TABLE\tENTITY\tCOLUMNS\tSEARCH\tFILTERS")
	for _, t := range all {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			t.Name,
			t.Entity,
			len(t.Columns),
			dash(strings.Join(t.SearchFields, ",")),
			dash(strings.Join(t.Filters, ",")),
		)
	}
	w.Flush()
	return nil
}

func printColumns(cmd *cobra.Command, t *tables.Table) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), tableJSON(t))
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "COLUMN\tTYPE\tREQUIRED")
	for _, c := range t.Columns {
		fmt.Fprintf(w, "%s\t%s\t%t\n", c.Name, columnType(c), c.Required)
	}
	for _, c := range t.Computed {
		fmt.Fprintf(w, "%s\tcomputed(%d)\tfalse\n", c.Name, c.Scale)
	}
	w.Flush()
	return nil
}

func tableJSON(t *tables.Table) map[string]any {
	cols := make([]map[string]any, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = map[string]any{
			"name":     c.Name,
			"type":     columnType(c),
			"required": c.Required,
		}
	}
	computed := make([]string, len(t.Computed))
	for i, c := range t.Computed {
		computed[i] = c.Name
	}
	return map[string]any{
		"name":          t.Name,
		"entity":        t.Entity,
		"columns":       cols,
		"search_fields": t.SearchFields,
		"filters":       t.Filters,
		"computed":      computed,
	}
}

func columnType(c tables.Column) string {
	switch {
	case c.Kind == tables.KindDecimal:
		return fmt.Sprintf("decimal(%d)", c.Scale)
	case c.Kind == tables.KindText && c.MaxLength > 0:
		return fmt.Sprintf("text(%d)", c.MaxLength)
	default:
		return c.Kind.String()
	}
}
