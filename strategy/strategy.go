// Package strategy implements the pluggable rate-limiting policies that
// decide, per tracked identity, whether an event passes immediately, is
// deferred for batch processing, or is ignored outright.
//
// Every strategy is dispatched by a string type tag rather than by Go type
// identity, because the distributed storage adapter replays the same
// decision inside a server-side Lua script and cannot call back into this
// package. New strategies therefore require a matching arm in
// storage/redis's track.lua; this coupling is intentional, not an oversight.
package strategy

import (
	"github.com/justapithecus/throttlekeep/record"
)

// Outcome is the result of a throttling decision.
type Outcome string

const (
	Immediate Outcome = "immediate"
	Deferred  Outcome = "deferred"
	Ignored   Outcome = "ignored"
)

// Reasons attached to an Ignored outcome.
const (
	ReasonAlreadyDeferred = "already_deferred"
	ReasonKeyLimitReached = "key_limit_reached"
)

// Type tags used for wire-safe dispatch. Identical to the values stored in
// record.Record.StrategyType and to the Lua script arm selector.
const (
	TypeSimple         = "simple"
	TypeTokenBucket    = "token-bucket"
	TypeSlidingWindow  = "sliding-window"
)

// Event is the input to a throttling decision. Key and DetailsHash are
// computed by the caller (the identity package, via the storage adapter)
// before Decide is invoked, since the freshness check needs DetailsHash
// regardless of which strategy is bound.
type Event struct {
	Key         string
	Category    string
	ID          string
	Details     any
	DetailsHash string
}

// Strategy is the contract every rate-limiting policy satisfies.
//
// Decide receives the prior record for this identity, or nil if none
// exists (or it is being reinitialized because it expired or its details
// fingerprint changed). cfg carries the tuning parameters to snapshot into
// a freshly created record; for an existing record, implementations read
// tuning parameters from prior.Config instead, so that a runtime config
// update targeted at one identity (tracker.UpdateConfig) never leaks into
// another identity's behavior.
type Strategy interface {
	// Type returns this strategy's wire-safe dispatch tag.
	Type() string

	// Decide applies the strategy's rules and returns the outcome, the
	// record to persist, and (for Ignored outcomes) a reason string.
	Decide(prior *record.Record, ev Event, now int64, cfg record.Config) (Outcome, *record.Record, string)
}

// refreshExpiry is shared by every strategy: any accepted or ignored event
// pushes the record's expiry forward by cfg.ExpireTime milliseconds.
func refreshExpiry(r *record.Record, now int64, cfg record.Config) {
	r.ExpiresAt = now + cfg.ExpireTime
}
