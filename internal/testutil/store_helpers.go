package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/wesm/leadvault/internal/store"
)

// NewTestStore creates a temporary database for testing.
// The database is automatically cleaned up when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
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

// SeedAccounts stores one account per id with token "tok-<id>" and name
// "Account <id>". The first id becomes current.
func SeedAccounts(t *testing.T, st *store.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := st.UpsertAccount(context.Background(), store.Account{
			ID:          id,
			Name:        "Account " + id,
			AccessToken: "tok-" + id,
		})
		if err != nil {
			t.Fatalf("seed account %s: %v", id, err)
		}
	}
}
