// Package testutil provides shared test helpers for setting up vaults and graph stores.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/mnemo/internal/graph/sqlite"
	"github.com/starford/mnemo/internal/storage"
)

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestGraph opens an embedded graph store in a temporary directory that is
// closed when the test ends.
func TestGraph(t *testing.T) *sqlite.Store {
	t.Helper()
	g, err := sqlite.Open(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g
}
