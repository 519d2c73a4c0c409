package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hyperengineering/refdata/pkg/refdata"
)

const defaultServerURL = "http://localhost:8080"

var (
	serverURL  string
	jsonOutput bool
)

// newClient returns an API client for --url, REFDATA_URL or the default
// local address, in that order.
func newClient() (*refdata.Client, error) {
	base := serverURL
	if base == "" {
		base = os.Getenv("REFDATA_URL")
	}
	if base == "" {
		base = defaultServerURL
	}
	return refdata.New(base)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// formatSeconds renders a duration given in seconds.
func formatSeconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(time.Millisecond).String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int64, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
