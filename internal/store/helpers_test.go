package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/hyperengineering/refdata/internal/record"
	"github.com/hyperengineering/refdata/internal/tables"
)

// openTestStore opens a migrated sqlite store in a temp directory.
func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), Options{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "refdata.db"),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// decodeRows turns JSON objects into a shape and typed rows for tbl.
func decodeRows(t *testing.T, tbl *tables.Table, objects ...string) (*record.Shape, []record.Row) {
	t.Helper()
	wires := make([]record.WireRecord, len(objects))
	for i, o := range objects {
		if err := json.Unmarshal([]byte(o), &wires[i]); err != nil {
			t.Fatalf("unmarshal %s: %v", o, err)
		}
	}
	shape, err := record.NewShape(tbl, wires[0])
	if err != nil {
		t.Fatalf("NewShape() error = %v", err)
	}
	rows := make([]record.Row, len(wires))
	for i, w := range wires {
		row, err := record.Decode(tbl, w)
		if err != nil {
			t.Fatalf("Decode(%d) error = %v", i, err)
		}
		rows[i] = row
	}
	return shape, rows
}

// codes returns the code column of each row in order.
func codes(rows []record.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		v, _ := r.Get("code")
		out[i] = v.String()
	}
	return out
}
