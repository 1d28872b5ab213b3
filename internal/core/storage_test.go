package core

import (
	"path/filepath"
	"strings"
	"testing"

	"silatcore/internal/infra/persistence/memory"
	"silatcore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("SILATCORE_STORAGE_DRIVER", "memory")

	store, err := OpenPersistentStore(nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	t.Setenv("SILATCORE_STORAGE_DRIVER", "")
	t.Setenv("SILATCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "directory.db"))

	store, err := OpenPersistentStore(nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	s, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if err := s.DB().Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("SILATCORE_STORAGE_DRIVER", "oracle")

	_, err := OpenPersistentStore(nil)
	if err == nil || !strings.Contains(err.Error(), "unknown storage driver") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}
