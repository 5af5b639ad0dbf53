package strategy

import (
	"testing"

	"github.com/justapithecus/throttlekeep/record"
)

func TestTokenBucketFirstEventSpendsOneToken(t *testing.T) {
	cfg := record.Config{BucketSize: 5, RefillRate: 1, ExpireTime: 1000}
	outcome, r, _ := TokenBucket{}.Decide(nil, Event{Key: "k1"}, 0, cfg)

	if outcome != Immediate {
		t.Fatalf("outcome: got %s, want immediate", outcome)
	}
	tokens := asFloat64(r.StrategyData["tokens"])
	if tokens != 4 {
		t.Errorf("tokens: got %v, want 4", tokens)
	}
}

func TestTokenBucketDefersWhenExhausted(t *testing.T) {
	cfg := record.Config{BucketSize: 1, RefillRate: 1, ExpireTime: 1000}
	_, r, _ := TokenBucket{}.Decide(nil, Event{Key: "k1"}, 0, cfg)

	// No time has passed, so no refill: bucket is empty.
	outcome, next, _ := TokenBucket{}.Decide(r, Event{Key: "k1"}, 0, cfg)
	if outcome != Deferred {
		t.Fatalf("outcome: got %s, want deferred", outcome)
	}
	if next.ScheduledSendAt == nil {
		t.Fatal("expected a scheduled send time")
	}
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	cfg := record.Config{BucketSize: 1, RefillRate: 1, ExpireTime: 1000}
	_, r, _ := TokenBucket{}.Decide(nil, Event{Key: "k1"}, 0, cfg)

	// 1000ms later, refill rate 1/sec should fully refill the bucket.
	outcome, _, _ := TokenBucket{}.Decide(r, Event{Key: "k1"}, 1000, cfg)
	if outcome != Immediate {
		t.Fatalf("outcome: got %s, want immediate after full refill", outcome)
	}
}

func TestTokenBucketClearsDeferredStateOnSuccess(t *testing.T) {
	cfg := record.Config{BucketSize: 1, RefillRate: 1, ExpireTime: 1000}
	_, r, _ := TokenBucket{}.Decide(nil, Event{Key: "k1"}, 0, cfg)
	_, r, _ = TokenBucket{}.Decide(r, Event{Key: "k1"}, 0, cfg)
	if !r.Deferred {
		t.Fatal("expected record to be deferred before refill")
	}

	_, next, _ := TokenBucket{}.Decide(r, Event{Key: "k1"}, 2000, cfg)
	if next.Deferred {
		t.Error("expected deferred state cleared once tokens are available again")
	}
	if next.ScheduledSendAt != nil {
		t.Error("expected ScheduledSendAt cleared on recovery")
	}
}
