// Package storage defines the adapter boundary that the tracker engine
// drives: atomic per-identity tracking, point operations on records, and
// the deferred-set index that the processing loop polls. Two
// implementations satisfy it: storage/memory (in-process) and
// storage/redis (a shared external store).
package storage

import (
	"context"
	"errors"

	"github.com/justapithecus/throttlekeep/record"
	"github.com/justapithecus/throttlekeep/strategy"
)

// ErrClosed is the error value for an adapter used after Close. Neither
// storage/memory nor storage/redis returns it: the memory adapter keeps
// serving operations after Close, and the redis adapter reports the
// client's own error once a client it owns has been closed.
var ErrClosed = errors.New("storage: adapter closed")

// TrackConfig carries the tracker-level tuning values needed by Track:
// the defaults read by a strategy at decision time, the per-strategy
// parameters to snapshot into a freshly created record, and the maxKeys
// cap enforced atomically inside Track.
type TrackConfig struct {
	record.Config
	MaxKeys int64
}

// TrackResult is the outcome of a Track call.
type TrackResult struct {
	Outcome strategy.Outcome
	Record  *record.Record
	Reason  string
}

// UpdateFunc mutates a record in place and returns the value to persist.
// Returning a nil record is invalid and is treated as "leave unchanged" by
// implementations, since Update is documented to either replace or leave
// the record untouched — never delete it.
type UpdateFunc func(*record.Record) (*record.Record, error)

// Adapter is the storage contract every backing store implements.
// All operations are safe for concurrent use by multiple goroutines.
type Adapter interface {
	// Get returns a clone of the stored record, or nil if absent.
	Get(ctx context.Context, key string) (*record.Record, error)

	// Set upserts r and maintains the deferred-index invariant.
	Set(ctx context.Context, key string, r *record.Record) error

	// Delete removes the record and its deferred-index entry, if any.
	Delete(ctx context.Context, key string) error

	// Update atomically applies fn to the stored record. Returns false if
	// no record exists for key; fn is not invoked in that case.
	Update(ctx context.Context, key string, fn UpdateFunc) (bool, error)

	// Size returns the number of live records.
	Size(ctx context.Context) (int64, error)

	// AcquireKeySlot reports whether key already has a record or a new
	// slot is available under maxKeys. maxKeys <= 0 means unlimited. This
	// is advisory for in-process adapters; Track re-checks atomically.
	AcquireKeySlot(ctx context.Context, key string, maxKeys int64) (bool, error)

	// Track is the atomic compound operation described in the package
	// doc: load, freshness check, strategy decision, write, index
	// maintenance, all indivisible from the perspective of other callers
	// operating on the same key.
	Track(ctx context.Context, key string, ev strategy.Event, cfg TrackConfig, strat strategy.Strategy) (TrackResult, error)

	// FindDueDeferred returns a non-destructive snapshot of every
	// deferred record whose ScheduledSendAt is <= nowMs.
	FindDueDeferred(ctx context.Context, nowMs int64) ([]*record.Record, error)

	// PopDueDeferred atomically removes and returns every deferred record
	// whose ScheduledSendAt is <= nowMs.
	PopDueDeferred(ctx context.Context, nowMs int64) ([]*record.Record, error)

	// FindAllDeferred returns a snapshot of every currently deferred
	// record, regardless of schedule.
	FindAllDeferred(ctx context.Context) ([]*record.Record, error)

	// Close releases adapter-owned resources (timers, connections the
	// adapter itself created). It must not close a client handed in by
	// the caller.
	Close() error
}

// Freshness reports whether a prior record is still usable for the
// incoming event, per the freshness rule shared by both adapters: a prior
// record is stale (forcing reinitialization) when it has expired or the
// details fingerprint changed.
func Freshness(prior *record.Record, now int64, detailsHash string) bool {
	if prior == nil {
		return false
	}
	if now > prior.ExpiresAt {
		return false
	}
	if prior.DetailsHash != detailsHash {
		return false
	}
	return true
}
