package sqlstore

import (
	"path/filepath"
	"testing"

	"github.com/assaf/reliable-msg/internal/store"
	"github.com/assaf/reliable-msg/internal/store/storetest"
)

func newSQLite(t *testing.T) store.MessageStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s := NewSQLite(path, "msg_", nil)
	if err := s.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := s.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	t.Cleanup(func() { s.Deactivate() })
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, map[string]storetest.Factory{
		"sqlite": newSQLite,
	})
}

func TestSQLiteTablePrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s := NewSQLite(path, "custom_", nil)
	if err := s.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if got, want := s.table("queues"), "custom_queues"; got != want {
		t.Fatalf("table(queues) = %q, want %q", got, want)
	}
}
