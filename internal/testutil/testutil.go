// Package testutil provides shared test infrastructure: quiet loggers and
// disposable event stores.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/mcp-tool-shop/nexus-router/internal/store"
)

// Logger returns a logger that discards everything. Tests asserting on log
// output should build their own handler.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MustOpenStore opens an in-memory event store and closes it when the test
// ends.
func MustOpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.MemoryPath, Logger(), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

// MustOpenFileStore opens a file-backed store under the test's temp dir.
func MustOpenFileStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nexus.db")
	s, err := store.Open(path, Logger(), nil)
	if err != nil {
		t.Fatalf("open store at %s: %v", path, err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}
