package rediskv

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/aurraa/classroom/storage/kv/kvtest"
)

func TestStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := Dial(ctx, addr, os.Getenv("TEST_REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	prefix := "test:" + uuid.New().String() + ":"
	store := NewStore(client, prefix)
	kvtest.Run(t, store)

	keys, err := client.Keys(ctx, prefix+"*").Result()
	if err != nil {
		t.Fatalf("KEYS error = %v", err)
	}
	if len(keys) == 0 {
		t.Error("no prefixed keys written")
	}
	_ = client.Del(ctx, keys...).Err()
}
