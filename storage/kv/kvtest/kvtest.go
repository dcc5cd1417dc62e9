// Package kvtest holds the behaviour every core.KeyValueStore backend must show.
package kvtest

import (
	"context"
	"sync"
	"testing"

	"github.com/aurraa/classroom/core"
)

// Run exercises store. store must be empty.
func Run(t *testing.T, store core.KeyValueStore) {
	ctx := context.Background()

	t.Run("absent", func(t *testing.T) {
		val, ok, err := store.GetItem(ctx, "missing")
		if err != nil || ok || val != "" {
			t.Errorf("GetItem() = %q, %v, %v; want absent", val, ok, err)
		}
	})

	t.Run("set get overwrite", func(t *testing.T) {
		for _, val := range []string{`{"username":"stu"}`, "", "second"} {
			if err := store.SetItem(ctx, "studentProfile", val); err != nil {
				t.Fatalf("SetItem() error = %v", err)
			}
			got, ok, err := store.GetItem(ctx, "studentProfile")
			if err != nil || !ok || got != val {
				t.Errorf("GetItem() = %q, %v, %v; want %q", got, ok, err, val)
			}
		}
	})

	t.Run("remove", func(t *testing.T) {
		for _, k := range []string{"a", "b", "c"} {
			if err := store.SetItem(ctx, k, k); err != nil {
				t.Fatalf("SetItem() error = %v", err)
			}
		}
		if err := store.RemoveItem(ctx, "a", "b", "never-set"); err != nil {
			t.Fatalf("RemoveItem() error = %v", err)
		}
		if err := store.RemoveItem(ctx); err != nil {
			t.Fatalf("RemoveItem() without keys error = %v", err)
		}
		for k, want := range map[string]bool{"a": false, "b": false, "c": true} {
			if _, ok, _ := store.GetItem(ctx, k); ok != want {
				t.Errorf("GetItem(%s) present = %v, want %v", k, ok, want)
			}
		}
	})

	t.Run("concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					if err := store.SetItem(ctx, "shared", "v"); err != nil {
						t.Errorf("SetItem() error = %v", err)
						return
					}
					if _, _, err := store.GetItem(ctx, "shared"); err != nil {
						t.Errorf("GetItem() error = %v", err)
						return
					}
				}
			}()
		}
		wg.Wait()
	})
}
