package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/throttlekeep/storage"
	"github.com/justapithecus/throttlekeep/storage/conformance"
)

func newTestAdapter(t *testing.T) storage.Adapter {
	t.Helper()
	mr := miniredis.RunT(t)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	a, err := New(Config{Client: client, Prefix: "event-tracker-test"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return a
}

func TestAdapterConformance(t *testing.T) {
	conformance.Run(t, newTestAdapter)
}

func TestAcquireKeySlotWithUnlimitedMaxKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	a, err := New(Config{Client: client, Prefix: "event-tracker-test"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ok, err := a.AcquireKeySlot(t.Context(), "k1", 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected unlimited maxKeys (0) to always grant a slot")
	}
}
