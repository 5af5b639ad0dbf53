package strategy

import (
	"math"

	"github.com/justapithecus/throttlekeep/record"
)

// SlidingWindow estimates the event rate across a rolling window by
// weighting the previous window's count against elapsed time in the
// current one. Like TokenBucket (and unlike Simple), recovery is
// time-driven: every event recomputes the estimate and may clear a prior
// deferred state, because section 4.1.3's algorithm has no "already
// deferred" early exit of its own.
type SlidingWindow struct{}

var _ Strategy = SlidingWindow{}

func (SlidingWindow) Type() string { return TypeSlidingWindow }

func (SlidingWindow) Decide(prior *record.Record, ev Event, now int64, cfg record.Config) (Outcome, *record.Record, string) {
	if prior == nil {
		r := &record.Record{
			Key:           ev.Key,
			Category:      ev.Category,
			ID:            ev.ID,
			Details:       ev.Details,
			DetailsHash:   ev.DetailsHash,
			Count:         1,
			LastEventTime: now,
			StrategyType:  TypeSlidingWindow,
			Config:        cfg,
			StrategyData: map[string]any{
				"currentCount":  int64(1),
				"previousCount": int64(0),
				"windowStart":   now,
			},
		}
		refreshExpiry(r, now, cfg)
		return Immediate, r, ""
	}

	next := prior.Clone()
	windowCfg := next.Config
	windowSize := windowCfg.WindowSize

	currentCount := asInt64(next.StrategyData["currentCount"])
	previousCount := asInt64(next.StrategyData["previousCount"])
	windowStart := asInt64(next.StrategyData["windowStart"])

	elapsed := now - windowStart
	if elapsed >= windowSize {
		if elapsed >= 2*windowSize {
			previousCount = 0
		} else {
			previousCount = currentCount
		}
		currentCount = 0
		windowStart = now - mod(elapsed, windowSize)
	}

	weight := float64(windowSize-(now-windowStart)) / float64(windowSize)
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}
	estimated := float64(currentCount) + float64(previousCount)*weight

	next.LastEventTime = now
	refreshExpiry(next, now, windowCfg)

	if estimated < float64(windowCfg.Limit) {
		currentCount++
		next.Count = int64(math.Floor(estimated + 1))
		next.Deferred = false
		next.ScheduledSendAt = nil
		next.StrategyData = map[string]any{
			"currentCount":  currentCount,
			"previousCount": previousCount,
			"windowStart":   windowStart,
		}
		return Immediate, next, ""
	}

	sendAt := now + windowCfg.DeferInterval
	next.Deferred = true
	next.ScheduledSendAt = &sendAt
	next.StrategyData = map[string]any{
		"currentCount":  currentCount,
		"previousCount": previousCount,
		"windowStart":   windowStart,
	}
	return Deferred, next, ""
}

func mod(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
