package memory

import (
	"testing"

	"github.com/justapithecus/throttlekeep/record"
	"github.com/justapithecus/throttlekeep/storage"
	"github.com/justapithecus/throttlekeep/storage/conformance"
	"github.com/justapithecus/throttlekeep/strategy"
)

func sampleExpiringRecord(key string, expiresAt int64) *record.Record {
	return &record.Record{
		Key:          key,
		Category:     "payment",
		ID:           "acct-1",
		DetailsHash:  "h1",
		Count:        1,
		ExpiresAt:    expiresAt,
		StrategyType: strategy.TypeSimple,
		Config:       record.Config{Limit: 5, DeferInterval: 1000, ExpireTime: 60_000},
	}
}

func TestAdapterConformance(t *testing.T) {
	conformance.Run(t, func(t *testing.T) storage.Adapter {
		return New(Config{PurgeInterval: -1})
	})
}

func TestPurgeSweepsExpiredRecords(t *testing.T) {
	now := int64(1000)
	a := New(Config{PurgeInterval: -1, Now: func() int64 { return now }})
	defer a.Close()

	ctx := t.Context()
	r := sampleExpiringRecord("k1", 1500)
	if err := a.Set(ctx, "k1", r); err != nil {
		t.Fatalf("set: %v", err)
	}

	now = 2000
	a.runPurge()

	got, err := a.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected expired record to be purged, got %+v", got)
	}
}

func TestCloneIsolatesCallerMutation(t *testing.T) {
	a := New(Config{PurgeInterval: -1})
	defer a.Close()

	ctx := t.Context()
	details := map[string]any{"amount": float64(10)}
	r := sampleExpiringRecord("k1", 60_000)
	r.Details = details

	if err := a.Set(ctx, "k1", r); err != nil {
		t.Fatalf("set: %v", err)
	}

	details["amount"] = float64(999)

	got, err := a.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	gotMap, ok := got.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected map details, got %T", got.Details)
	}
	if gotMap["amount"] != float64(10) {
		t.Fatalf("expected stored details to be isolated from caller mutation, got %v", gotMap["amount"])
	}
}
