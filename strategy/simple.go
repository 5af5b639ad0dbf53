package strategy

import "github.com/justapithecus/throttlekeep/record"

// Simple is a fixed-window counter: once the accepted-event count exceeds
// Limit, the identity is deferred and stays deferred until the record
// expires or is popped (it never auto-clears the way TokenBucket does).
type Simple struct{}

var _ Strategy = Simple{}

func (Simple) Type() string { return TypeSimple }

func (Simple) Decide(prior *record.Record, ev Event, now int64, cfg record.Config) (Outcome, *record.Record, string) {
	if prior == nil {
		r := &record.Record{
			Key:           ev.Key,
			Category:      ev.Category,
			ID:            ev.ID,
			Details:       ev.Details,
			DetailsHash:   ev.DetailsHash,
			Count:         1,
			LastEventTime: now,
			StrategyType:  TypeSimple,
			Config:        cfg,
		}
		refreshExpiry(r, now, cfg)

		if r.Count > cfg.Limit {
			sendAt := now + cfg.DeferInterval
			r.Deferred = true
			r.ScheduledSendAt = &sendAt
			return Deferred, r, ""
		}
		return Immediate, r, ""
	}

	next := prior.Clone()

	if prior.Deferred {
		refreshExpiry(next, now, next.Config)
		return Ignored, next, ReasonAlreadyDeferred
	}

	next.Count++
	next.LastEventTime = now
	refreshExpiry(next, now, next.Config)

	if next.Count > next.Config.Limit {
		sendAt := now + next.Config.DeferInterval
		next.Deferred = true
		next.ScheduledSendAt = &sendAt
		return Deferred, next, ""
	}
	return Immediate, next, ""
}
