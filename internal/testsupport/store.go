package testsupport

import (
	"context"
	"testing"

	"groundstation/internal/config"
	"groundstation/internal/persist"
)

// MustOpenStore opens the configured persist.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *persist.Store {
	t.Helper()

	store, err := persist.Open(context.Background(), cfg.Persist.DatabasePath)
	if err != nil {
		t.Fatalf("persist.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
