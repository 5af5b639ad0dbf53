// Package conformance runs the same table-driven suite against any
// storage.Adapter implementation, so storage/memory and storage/redis are
// held to identical behavioral guarantees.
package conformance

import (
	"testing"

	"github.com/justapithecus/throttlekeep/record"
	"github.com/justapithecus/throttlekeep/storage"
	"github.com/justapithecus/throttlekeep/strategy"
)

// Factory produces a fresh, empty adapter instance for a single (sub)test.
// Implementations should return a cleanup-free adapter; t.Cleanup is used
// by the suite to Close it.
type Factory func(t *testing.T) storage.Adapter

// Run exercises the storage.Adapter contract against the adapter New
// produces. Call this from a TestXxx function in each adapter package.
func Run(t *testing.T, newAdapter Factory) {
	t.Helper()

	t.Run("GetMissingReturnsNil", func(t *testing.T) { testGetMissing(t, newAdapter) })
	t.Run("SetThenGetRoundTrips", func(t *testing.T) { testSetGet(t, newAdapter) })
	t.Run("DeleteRemovesRecord", func(t *testing.T) { testDelete(t, newAdapter) })
	t.Run("UpdateMissingReturnsFalse", func(t *testing.T) { testUpdateMissing(t, newAdapter) })
	t.Run("UpdateAppliesFn", func(t *testing.T) { testUpdateApplies(t, newAdapter) })
	t.Run("SizeTracksLiveRecords", func(t *testing.T) { testSize(t, newAdapter) })
	t.Run("AcquireKeySlotEnforcesMaxKeys", func(t *testing.T) { testAcquireKeySlot(t, newAdapter) })
	t.Run("TrackFirstEventIsImmediate", func(t *testing.T) { testTrackFirstImmediate(t, newAdapter) })
	t.Run("TrackEnforcesLimit", func(t *testing.T) { testTrackLimit(t, newAdapter) })
	t.Run("TrackEnforcesMaxKeys", func(t *testing.T) { testTrackMaxKeys(t, newAdapter) })
	t.Run("FindAndPopDueDeferred", func(t *testing.T) { testDeferredIndex(t, newAdapter) })
}

func open(t *testing.T, f Factory) storage.Adapter {
	t.Helper()
	a := f(t)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func sampleRecord(key string, deferred bool) *record.Record {
	r := &record.Record{
		Key:           key,
		Category:      "payment",
		ID:            "acct-1",
		DetailsHash:   "h1",
		Count:         1,
		LastEventTime: 1000,
		ExpiresAt:     1000 + 60_000,
		Deferred:      deferred,
		StrategyType:  strategy.TypeSimple,
		Config:        record.Config{Limit: 5, DeferInterval: 1000, ExpireTime: 60_000},
	}
	if deferred {
		sendAt := int64(2000)
		r.ScheduledSendAt = &sendAt
	}
	return r
}

func testGetMissing(t *testing.T, f Factory) {
	a := open(t, f)
	ctx := t.Context()

	got, err := a.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func testSetGet(t *testing.T, f Factory) {
	a := open(t, f)
	ctx := t.Context()

	want := sampleRecord("k1", false)
	if err := a.Set(ctx, "k1", want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := a.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected a record, got nil")
	}
	if got.Category != want.Category || got.ID != want.ID || got.Count != want.Count {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func testDelete(t *testing.T, f Factory) {
	a := open(t, f)
	ctx := t.Context()

	_ = a.Set(ctx, "k1", sampleRecord("k1", false))
	if err := a.Delete(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := a.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after delete, got %+v", got)
	}
}

func testUpdateMissing(t *testing.T, f Factory) {
	a := open(t, f)
	ctx := t.Context()

	called, err := a.Update(ctx, "missing", func(r *record.Record) (*record.Record, error) {
		t.Fatal("fn should not be invoked for a missing key")
		return r, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if called {
		t.Fatal("expected Update to report false for a missing key")
	}
}

func testUpdateApplies(t *testing.T, f Factory) {
	a := open(t, f)
	ctx := t.Context()

	_ = a.Set(ctx, "k1", sampleRecord("k1", false))

	ok, err := a.Update(ctx, "k1", func(r *record.Record) (*record.Record, error) {
		r.Config.Limit = 99
		return r, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !ok {
		t.Fatal("expected Update to report true")
	}

	got, _ := a.Get(ctx, "k1")
	if got.Config.Limit != 99 {
		t.Fatalf("expected updated limit 99, got %d", got.Config.Limit)
	}
}

func testSize(t *testing.T, f Factory) {
	a := open(t, f)
	ctx := t.Context()

	n, err := a.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty adapter size 0, got %d", n)
	}

	_ = a.Set(ctx, "k1", sampleRecord("k1", false))
	_ = a.Set(ctx, "k2", sampleRecord("k2", false))

	n, err = a.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected size 2, got %d", n)
	}
}

func testAcquireKeySlot(t *testing.T, f Factory) {
	a := open(t, f)
	ctx := t.Context()

	ok, err := a.AcquireKeySlot(ctx, "k1", 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected a slot to be available under an empty adapter")
	}

	_ = a.Set(ctx, "k1", sampleRecord("k1", false))

	ok, err = a.AcquireKeySlot(ctx, "k1", 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("an existing key must always acquire a slot")
	}

	ok, err = a.AcquireKeySlot(ctx, "k2", 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ok {
		t.Fatal("expected a new key to be denied once maxKeys is reached")
	}
}

func testTrackFirstImmediate(t *testing.T, f Factory) {
	a := open(t, f)
	ctx := t.Context()

	cfg := storage.TrackConfig{Config: record.Config{Limit: 3, DeferInterval: 1000, ExpireTime: 60_000}}
	ev := strategy.Event{Key: "k1", Category: "payment", ID: "acct-1", DetailsHash: "h1"}

	res, err := a.Track(ctx, "k1", ev, cfg, strategy.Simple{})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if res.Outcome != strategy.Immediate {
		t.Fatalf("expected immediate, got %s", res.Outcome)
	}
	if res.Record.Count != 1 {
		t.Fatalf("expected count 1, got %d", res.Record.Count)
	}
}

func testTrackLimit(t *testing.T, f Factory) {
	a := open(t, f)
	ctx := t.Context()

	cfg := storage.TrackConfig{Config: record.Config{Limit: 2, DeferInterval: 1000, ExpireTime: 60_000}}
	ev := strategy.Event{Key: "k1", Category: "payment", ID: "acct-1", DetailsHash: "h1"}

	for i := 0; i < 2; i++ {
		if _, err := a.Track(ctx, "k1", ev, cfg, strategy.Simple{}); err != nil {
			t.Fatalf("track %d: %v", i, err)
		}
	}

	res, err := a.Track(ctx, "k1", ev, cfg, strategy.Simple{})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if res.Outcome != strategy.Deferred {
		t.Fatalf("expected deferred after exceeding limit, got %s", res.Outcome)
	}
}

func testTrackMaxKeys(t *testing.T, f Factory) {
	a := open(t, f)
	ctx := t.Context()

	cfg := storage.TrackConfig{Config: record.Config{Limit: 5, DeferInterval: 1000, ExpireTime: 60_000}, MaxKeys: 1}

	ev1 := strategy.Event{Key: "k1", Category: "payment", ID: "acct-1", DetailsHash: "h1"}
	if _, err := a.Track(ctx, "k1", ev1, cfg, strategy.Simple{}); err != nil {
		t.Fatalf("track k1: %v", err)
	}

	ev2 := strategy.Event{Key: "k2", Category: "payment", ID: "acct-2", DetailsHash: "h1"}
	res, err := a.Track(ctx, "k2", ev2, cfg, strategy.Simple{})
	if err != nil {
		t.Fatalf("track k2: %v", err)
	}
	if res.Outcome != strategy.Ignored || res.Reason != strategy.ReasonKeyLimitReached {
		t.Fatalf("expected key_limit_reached, got outcome=%s reason=%s", res.Outcome, res.Reason)
	}
}

func testDeferredIndex(t *testing.T, f Factory) {
	a := open(t, f)
	ctx := t.Context()

	_ = a.Set(ctx, "k1", sampleRecord("k1", true))

	all, err := a.FindAllDeferred(ctx)
	if err != nil {
		t.Fatalf("find all deferred: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 deferred record, got %d", len(all))
	}

	due, err := a.FindDueDeferred(ctx, 1500)
	if err != nil {
		t.Fatalf("find due deferred: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no records due before their schedule, got %d", len(due))
	}

	due, err = a.FindDueDeferred(ctx, 2500)
	if err != nil {
		t.Fatalf("find due deferred: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due record, got %d", len(due))
	}

	popped, err := a.PopDueDeferred(ctx, 2500)
	if err != nil {
		t.Fatalf("pop due deferred: %v", err)
	}
	if len(popped) != 1 {
		t.Fatalf("expected to pop 1 record, got %d", len(popped))
	}

	after, err := a.FindAllDeferred(ctx)
	if err != nil {
		t.Fatalf("find all deferred after pop: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("expected no deferred records after pop, got %d", len(after))
	}
}
