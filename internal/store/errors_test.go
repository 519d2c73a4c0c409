package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors_Identity(t *testing.T) {
	sentinels := []struct {
		name string
		err  error
	}{
		{"ErrStorageFailure", ErrStorageFailure},
		{"ErrNotFound", ErrNotFound},
		{"ErrUnsupportedDriver", ErrUnsupportedDriver},
	}

	for _, s := range sentinels {
		t.Run(s.name, func(t *testing.T) {
			if s.err == nil {
				t.Fatal("Sentinel error should not be nil")
			}
			wrapped := fmt.Errorf("context: %w", s.err)
			if !errors.Is(wrapped, s.err) {
				t.Errorf("errors.Is(wrapped, %s) = false", s.name)
			}
		})
	}
}
