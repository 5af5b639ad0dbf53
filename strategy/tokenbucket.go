package strategy

import "github.com/justapithecus/throttlekeep/record"

// TokenBucket refills fractional tokens over time and spends one per
// accepted event. Unlike Simple, a successful event clears any previously
// deferred state — recovery is time-driven, not sticky. This asymmetry
// with Simple is intentional; see Simple's doc comment.
type TokenBucket struct{}

var _ Strategy = TokenBucket{}

func (TokenBucket) Type() string { return TypeTokenBucket }

func (TokenBucket) Decide(prior *record.Record, ev Event, now int64, cfg record.Config) (Outcome, *record.Record, string) {
	if prior == nil {
		r := &record.Record{
			Key:           ev.Key,
			Category:      ev.Category,
			ID:            ev.ID,
			Details:       ev.Details,
			DetailsHash:   ev.DetailsHash,
			Count:         1,
			LastEventTime: now,
			StrategyType:  TypeTokenBucket,
			Config:        cfg,
			StrategyData: map[string]any{
				"tokens":     cfg.BucketSize - 1,
				"lastRefill": now,
			},
		}
		refreshExpiry(r, now, cfg)
		return Immediate, r, ""
	}

	next := prior.Clone()
	bucketCfg := next.Config

	tokens, lastRefill := tokenBucketState(next.StrategyData)

	elapsedMs := now - lastRefill
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	tokens += float64(elapsedMs) / 1000.0 * bucketCfg.RefillRate
	if tokens > bucketCfg.BucketSize {
		tokens = bucketCfg.BucketSize
	}
	lastRefill = now

	if tokens >= 1 {
		tokens -= 1
		next.Count++
		next.Deferred = false
		next.ScheduledSendAt = nil
		next.LastEventTime = now
		refreshExpiry(next, now, bucketCfg)
		next.StrategyData = map[string]any{"tokens": tokens, "lastRefill": lastRefill}
		return Immediate, next, ""
	}

	delayMs := (1 - tokens) * (1000 / bucketCfg.RefillRate)
	if delayMs < 1 {
		delayMs = 1
	}
	sendAt := now + int64(delayMs)
	next.Deferred = true
	next.ScheduledSendAt = &sendAt
	next.LastEventTime = now
	refreshExpiry(next, now, bucketCfg)
	next.StrategyData = map[string]any{"tokens": tokens, "lastRefill": lastRefill}
	return Deferred, next, ""
}

// tokenBucketState extracts (tokens, lastRefill) from strategy data,
// accepting float64 (what a JSON round trip through the distributed
// adapter yields) as well as float32, int64 and int; any other type reads
// as 0.
func tokenBucketState(data map[string]any) (tokens float64, lastRefill int64) {
	tokens = asFloat64(data["tokens"])
	lastRefill = asInt64(data["lastRefill"])
	return
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
