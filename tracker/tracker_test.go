package tracker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/justapithecus/throttlekeep/record"
	"github.com/justapithecus/throttlekeep/storage/memory"
	"github.com/justapithecus/throttlekeep/strategy"
)

func newClock(start int64) (*int64, func() int64) {
	now := start
	return &now, func() int64 { return now }
}

func newTestTracker(t *testing.T, cfg Config, clock func() int64) *Tracker {
	t.Helper()
	cfg.Now = clock
	cfg.Storage = memory.New(memory.Config{PurgeInterval: -1, Now: clock})
	tr, err := New(cfg)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	t.Cleanup(func() { _ = tr.Destroy() })
	return tr
}

// Scenario 1: simple counter defers after limit.
func TestSimpleCounterDefersAfterLimit(t *testing.T) {
	_, clock := newClock(0)
	tr := newTestTracker(t, Config{Limit: int64Ptr(2), DeferInterval: int64Ptr(100), ExpireTime: int64Ptr(200), Strategy: strategy.Simple{}}, clock)

	wantOutcomes := []strategy.Outcome{strategy.Immediate, strategy.Immediate, strategy.Deferred, strategy.Ignored}
	wantCounts := []int64{1, 2, 3, 3}

	for i, want := range wantOutcomes {
		res, err := tr.TrackEvent(t.Context(), "auth", "login_fail", nil)
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if res.Type != want {
			t.Fatalf("event %d: outcome = %s, want %s", i, res.Type, want)
		}

		var count int64
		if res.Record != nil {
			count = res.Record.Count
		} else {
			got, _ := tr.adapter.Get(t.Context(), mustKey(t, "auth", "login_fail"))
			count = got.Count
		}
		if count != wantCounts[i] {
			t.Fatalf("event %d: count = %d, want %d", i, count, wantCounts[i])
		}
	}

	last, err := tr.TrackEvent(t.Context(), "auth", "login_fail", nil)
	if err != nil {
		t.Fatalf("final event: %v", err)
	}
	if last.Ignored == nil || last.Ignored.Reason != strategy.ReasonAlreadyDeferred {
		t.Fatalf("expected already_deferred, got %+v", last)
	}
}

// Scenario 2: details change resets the counter.
func TestDetailsChangeResets(t *testing.T) {
	_, clock := newClock(0)
	tr := newTestTracker(t, Config{Limit: int64Ptr(2), DeferInterval: int64Ptr(100), ExpireTime: int64Ptr(200), Strategy: strategy.Simple{}}, clock)

	res1, _ := tr.TrackEvent(t.Context(), "auth", "login_fail", map[string]any{"ip": "1.1.1.1"})
	res2, _ := tr.TrackEvent(t.Context(), "auth", "login_fail", map[string]any{"ip": "1.1.1.1"})
	res3, err := tr.TrackEvent(t.Context(), "auth", "login_fail", map[string]any{"ip": "2.2.2.2"})
	if err != nil {
		t.Fatalf("event 3: %v", err)
	}

	if res1.Record.Count != 1 || res2.Record.Count != 2 || res3.Record.Count != 1 {
		t.Fatalf("counts = %d, %d, %d; want 1, 2, 1", res1.Record.Count, res2.Record.Count, res3.Record.Count)
	}
	if res3.Type != strategy.Immediate {
		t.Fatalf("third outcome = %s, want immediate", res3.Type)
	}
}

// Scenario 3: maxKeys exhaustion.
func TestMaxKeysExhaustion(t *testing.T) {
	_, clock := newClock(0)
	tr := newTestTracker(t, Config{Limit: int64Ptr(5), MaxKeys: 2, Strategy: strategy.Simple{}}, clock)

	if _, err := tr.TrackEvent(t.Context(), "c", "1", nil); err != nil {
		t.Fatalf("track 1: %v", err)
	}
	if _, err := tr.TrackEvent(t.Context(), "c", "2", nil); err != nil {
		t.Fatalf("track 2: %v", err)
	}

	res, err := tr.TrackEvent(t.Context(), "c", "3", nil)
	if err != nil {
		t.Fatalf("track 3: %v", err)
	}
	if res.Ignored == nil || res.Ignored.Reason != strategy.ReasonKeyLimitReached {
		t.Fatalf("expected key_limit_reached, got %+v", res)
	}

	again, err := tr.TrackEvent(t.Context(), "c", "1", nil)
	if err != nil {
		t.Fatalf("re-track 1: %v", err)
	}
	if again.Type != strategy.Immediate {
		t.Fatalf("re-tracking an existing identity should succeed, got %s", again.Type)
	}
}

// Scenario 6: sliding-window drift.
func TestSlidingWindowDrift(t *testing.T) {
	now, clock := newClock(0)
	tr := newTestTracker(t, Config{Limit: int64Ptr(10), WindowSize: 1000, Strategy: strategy.SlidingWindow{}}, clock)

	for i := 0; i < 10; i++ {
		res, err := tr.TrackEvent(t.Context(), "c", "1", nil)
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if res.Type != strategy.Immediate {
			t.Fatalf("event %d: outcome = %s, want immediate", i, res.Type)
		}
	}

	*now = 500
	res, err := tr.TrackEvent(t.Context(), "c", "1", nil)
	if err != nil {
		t.Fatalf("eleventh event: %v", err)
	}
	if res.Type != strategy.Deferred {
		t.Fatalf("eleventh event: outcome = %s, want deferred", res.Type)
	}

	*now = 1001
	res, err = tr.TrackEvent(t.Context(), "c", "1", nil)
	if err != nil {
		t.Fatalf("t=1001 event: %v", err)
	}
	if res.Type != strategy.Immediate || res.Record.Count != 10 {
		t.Fatalf("t=1001 event: got outcome=%s count=%d, want immediate count=10", res.Type, res.Record.Count)
	}

	res, err = tr.TrackEvent(t.Context(), "c", "1", nil)
	if err != nil {
		t.Fatalf("next event: %v", err)
	}
	if res.Type != strategy.Deferred {
		t.Fatalf("following event: outcome = %s, want deferred", res.Type)
	}
}

// Scenario 5: processor retry then give up.
func TestProcessorRetryThenGiveUp(t *testing.T) {
	_, clock := newClock(0)
	tr := newTestTracker(t, Config{
		Limit:         int64Ptr(1),
		DeferInterval: int64Ptr(0),
		MaxRetries:    2,
		RetryDelay:    1 * time.Millisecond,
		Strategy:      strategy.Simple{},
	}, clock)

	var calls int32
	var retries []RetryPayload
	var failed *ProcessFailedPayload

	unsubRetry := tr.Subscribe(EventRetry, func(p any) {
		rp := p.(RetryPayload)
		retries = append(retries, rp)
	})
	defer unsubRetry()
	unsubFailed := tr.Subscribe(EventProcessFailed, func(p any) {
		pf := p.(ProcessFailedPayload)
		failed = &pf
	})
	defer unsubFailed()

	tr.SetProcessor(func(events []*record.Record) error {
		atomic.AddInt32(&calls, 1)
		return errAlwaysFails
	})

	if _, err := tr.TrackEvent(t.Context(), "c", "1", nil); err != nil {
		t.Fatalf("track 1: %v", err)
	}
	if _, err := tr.TrackEvent(t.Context(), "c", "1", nil); err != nil {
		t.Fatalf("track 2: %v", err)
	}

	if _, err := tr.ProcessDeferredEvents(t.Context()); err == nil {
		t.Fatal("expected ProcessDeferredEvents to return an error after exhausting retries")
	}

	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 processor attempts, got %d", calls)
	}
	if len(retries) != 2 {
		t.Fatalf("expected 2 retry notifications, got %d", len(retries))
	}
	if retries[0].Attempt != 1 || retries[0].Delay != 1 {
		t.Fatalf("unexpected first retry payload: %+v", retries[0])
	}
	if retries[1].Attempt != 2 || retries[1].Delay != 2 {
		t.Fatalf("unexpected second retry payload: %+v", retries[1])
	}
	if failed == nil || failed.Attempts != 3 {
		t.Fatalf("expected process_failed with attempts=3, got %+v", failed)
	}

	n, err := tr.adapter.Size(t.Context())
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected storage to be empty after a failed batch, got size %d", n)
	}
}

var errAlwaysFails = fmtError("processor always fails")

type fmtError string

func (e fmtError) Error() string { return string(e) }

func mustKey(t *testing.T, category, id string) string {
	t.Helper()
	key, err := GenerateCompositeKey(category, id)
	if err != nil {
		t.Fatalf("composite key: %v", err)
	}
	return key
}
