package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wesm/msgscroll/internal/store"
)

// SeedNow is the fixed clock used by NewSeededStore.
var SeedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// NewTestStore creates a temporary database for testing using the default
// driver. The database is automatically cleaned up when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	return NewTestStoreWithDriver(t, store.DriverCGo)
}

// NewTestStoreWithDriver is NewTestStore for a specific sqlite driver.
func NewTestStoreWithDriver(t *testing.T, driver string) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath, driver)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() {
		st.Close()
	})

	if err := st.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	return st
}

// NewSeededStore returns a test store holding count deterministic synthetic
// messages.
func NewSeededStore(t *testing.T, count int) *store.Store {
	t.Helper()
	st := NewTestStore(t)
	err := st.Seed(context.Background(), store.SeedOptions{Count: count, Seed: 1, Now: SeedNow})
	MustNoErr(t, err, "seed")
	return st
}
