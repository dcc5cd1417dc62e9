package inmemkv

import (
	"testing"

	"github.com/aurraa/classroom/storage/kv/kvtest"
)

func TestStore(t *testing.T) {
	kvtest.Run(t, NewStore())
}
