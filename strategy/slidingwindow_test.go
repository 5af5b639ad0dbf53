package strategy

import (
	"testing"

	"github.com/justapithecus/throttlekeep/record"
)

func TestSlidingWindowFirstEventIsImmediate(t *testing.T) {
	cfg := record.Config{Limit: 10, WindowSize: 1000, DeferInterval: 500, ExpireTime: 2000}
	outcome, r, _ := SlidingWindow{}.Decide(nil, Event{Key: "k1"}, 0, cfg)

	if outcome != Immediate {
		t.Fatalf("outcome: got %s, want immediate", outcome)
	}
	if r.Count != 1 {
		t.Errorf("count: got %d, want 1", r.Count)
	}
}

func TestSlidingWindowAcceptsUpToLimitWithinWindow(t *testing.T) {
	cfg := record.Config{Limit: 10, WindowSize: 1000, DeferInterval: 500, ExpireTime: 2000}
	_, r, _ := SlidingWindow{}.Decide(nil, Event{Key: "k1"}, 0, cfg)

	var outcome Outcome
	for i := 0; i < 9; i++ {
		outcome, r, _ = SlidingWindow{}.Decide(r, Event{Key: "k1"}, int64(i), cfg)
		if outcome != Immediate {
			t.Fatalf("event %d: got %s, want immediate", i+1, outcome)
		}
	}
	if r.Count != 10 {
		t.Errorf("count: got %d, want 10", r.Count)
	}
}

func TestSlidingWindowDefersOnceEstimateReachesLimit(t *testing.T) {
	cfg := record.Config{Limit: 2, WindowSize: 1000, DeferInterval: 500, ExpireTime: 2000}
	_, r, _ := SlidingWindow{}.Decide(nil, Event{Key: "k1"}, 0, cfg)
	_, r, _ = SlidingWindow{}.Decide(r, Event{Key: "k1"}, 10, cfg)

	outcome, next, _ := SlidingWindow{}.Decide(r, Event{Key: "k1"}, 20, cfg)
	if outcome != Deferred {
		t.Fatalf("outcome: got %s, want deferred", outcome)
	}
	if next.ScheduledSendAt == nil || *next.ScheduledSendAt != 20+cfg.DeferInterval {
		t.Errorf("scheduledSendAt: got %v, want %d", next.ScheduledSendAt, 20+cfg.DeferInterval)
	}
}

func TestSlidingWindowRollsOverToNewWindow(t *testing.T) {
	cfg := record.Config{Limit: 2, WindowSize: 1000, DeferInterval: 500, ExpireTime: 2000}
	_, r, _ := SlidingWindow{}.Decide(nil, Event{Key: "k1"}, 0, cfg)
	_, r, _ = SlidingWindow{}.Decide(r, Event{Key: "k1"}, 10, cfg)
	_, r, _ = SlidingWindow{}.Decide(r, Event{Key: "k1"}, 20, cfg)
	if !r.Deferred {
		t.Fatal("expected deferred after exceeding limit in first window")
	}

	// Far enough past the window that the weighted carry-over from the
	// previous window drops below the limit again.
	outcome, _, _ := SlidingWindow{}.Decide(r, Event{Key: "k1"}, 2500, cfg)
	if outcome != Immediate {
		t.Errorf("outcome: got %s, want immediate once the window has rolled over", outcome)
	}
}
