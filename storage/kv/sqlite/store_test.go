package sqlitekv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aurraa/classroom/storage/kv/kvtest"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local-storage.db")

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	kvtest.Run(t, store)

	if err = store.SetItem(ctx, "teacherProfile", "kept"); err != nil {
		t.Fatalf("SetItem() error = %v", err)
	}
	if err = store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// reopened stores see what was written before
	store, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()
	if val, ok, err := store.GetItem(ctx, "teacherProfile"); err != nil || !ok || val != "kept" {
		t.Errorf("GetItem() after reopen = %q, %v, %v", val, ok, err)
	}
}
