// Package memory implements the in-process storage.Adapter: a map of
// records guarded by a per-key mutex table, a parallel deferred-key index,
// a deep-clone boundary, and a periodic expiry sweep.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/throttlekeep/internal/deepclone"
	"github.com/justapithecus/throttlekeep/internal/keymutex"
	"github.com/justapithecus/throttlekeep/log"
	"github.com/justapithecus/throttlekeep/record"
	"github.com/justapithecus/throttlekeep/storage"
	"github.com/justapithecus/throttlekeep/strategy"
)

// DefaultPurgeInterval is how often the purge sweep runs when Config
// leaves PurgeInterval unset.
const DefaultPurgeInterval = 60 * time.Second

// Config configures the in-process adapter.
type Config struct {
	// PurgeInterval is how often expired records are swept. Zero (the
	// Config zero value) uses DefaultPurgeInterval; a negative value
	// disables the purge loop entirely.
	PurgeInterval time.Duration
	// Logger receives the one-shot clone-fallback warning. Defaults to a
	// no-op logger.
	Logger *log.Logger
	// Now overrides time.Now, for tests.
	Now func() int64
}

// Adapter is the in-process storage.Adapter implementation.
type Adapter struct {
	keys *keymutex.Table

	mu            sync.RWMutex
	records       map[string]*record.Record
	deferredKeys  map[string]struct{}

	logger       *log.Logger
	cloneWarnOnce sync.Once
	now          func() int64

	purgeInterval time.Duration
	purgeTimer    *time.Timer
	closeOnce     sync.Once
	closed        chan struct{}
}

var _ storage.Adapter = (*Adapter)(nil)

// New creates an in-process adapter and, unless PurgeInterval is
// negative, starts its purge loop.
func New(cfg Config) *Adapter {
	if cfg.Logger == nil {
		cfg.Logger = log.Noop()
	}
	if cfg.Now == nil {
		cfg.Now = nowMillis
	}

	interval := cfg.PurgeInterval
	if interval == 0 {
		interval = DefaultPurgeInterval
	}

	a := &Adapter{
		keys:          keymutex.New(),
		records:       make(map[string]*record.Record),
		deferredKeys:  make(map[string]struct{}),
		logger:        cfg.Logger,
		now:           cfg.Now,
		purgeInterval: interval,
		closed:        make(chan struct{}),
	}

	if interval > 0 {
		a.purgeTimer = time.AfterFunc(interval, a.runPurge)
	}

	return a
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func (a *Adapter) runPurge() {
	select {
	case <-a.closed:
		return
	default:
	}

	now := a.now()
	a.mu.Lock()
	for key, r := range a.records {
		if now > r.ExpiresAt {
			delete(a.records, key)
			delete(a.deferredKeys, key)
		}
	}
	a.mu.Unlock()

	select {
	case <-a.closed:
		return
	default:
		a.purgeTimer = time.AfterFunc(a.purgeInterval, a.runPurge)
	}
}

// Close stops the purge loop. Stored records and the deferred index are
// left in place; there is nothing else for the in-process adapter to
// release.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		close(a.closed)
		if a.purgeTimer != nil {
			a.purgeTimer.Stop()
		}
	})
	return nil
}

// cloneOut applies the value-isolation boundary to a record crossing out
// of the adapter. record.Clone copies the record and its JSON-shaped
// Details; deepclone.Clone then re-copies any non-nil Details
// recursively, which also covers exotic values (time.Time,
// *regexp.Regexp, nested maps/slices of those). If that fails — a genuinely non-cloneable value such as a function
// literal reached through Details — the original reference is kept and a
// one-shot warning is logged for this adapter instance.
func (a *Adapter) cloneOut(r *record.Record) *record.Record {
	if r == nil {
		return nil
	}
	clone := r.Clone()
	if clone.Details == nil {
		return clone
	}
	if dc, err := deepclone.Clone(clone.Details); err != nil {
		a.cloneWarnOnce.Do(func() {
			a.logger.Warn("details payload contains a non-cloneable value; falling back to a shared reference for this subtree", map[string]any{
				"error": err.Error(),
			})
		})
	} else {
		clone.Details = dc
	}
	return clone
}

// cloneIn applies the same boundary on the way into the adapter, so a
// caller mutating the value they passed to Set cannot affect stored state.
func (a *Adapter) cloneIn(r *record.Record) *record.Record {
	return a.cloneOut(r)
}

func (a *Adapter) Get(_ context.Context, key string) (*record.Record, error) {
	a.mu.RLock()
	r, ok := a.records[key]
	a.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return a.cloneOut(r), nil
}

func (a *Adapter) Set(_ context.Context, key string, r *record.Record) error {
	unlock := a.keys.Lock(key)
	defer unlock()

	stored := a.cloneIn(r)
	stored.Key = key

	a.mu.Lock()
	a.records[key] = stored
	if stored.Deferred {
		a.deferredKeys[key] = struct{}{}
	} else {
		delete(a.deferredKeys, key)
	}
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Delete(_ context.Context, key string) error {
	unlock := a.keys.Lock(key)
	defer unlock()

	a.mu.Lock()
	delete(a.records, key)
	delete(a.deferredKeys, key)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Update(_ context.Context, key string, fn storage.UpdateFunc) (bool, error) {
	unlock := a.keys.Lock(key)
	defer unlock()

	a.mu.RLock()
	existing, ok := a.records[key]
	a.mu.RUnlock()
	if !ok {
		return false, nil
	}

	next, err := fn(a.cloneOut(existing))
	if err != nil {
		return false, err
	}
	if next == nil {
		return true, nil
	}
	next.Key = key

	stored := a.cloneIn(next)
	a.mu.Lock()
	a.records[key] = stored
	if stored.Deferred {
		a.deferredKeys[key] = struct{}{}
	} else {
		delete(a.deferredKeys, key)
	}
	a.mu.Unlock()
	return true, nil
}

func (a *Adapter) Size(_ context.Context) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return int64(len(a.records)), nil
}

func (a *Adapter) AcquireKeySlot(_ context.Context, key string, maxKeys int64) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.records[key]; ok {
		return true, nil
	}
	if maxKeys <= 0 {
		return true, nil
	}
	return int64(len(a.records)) < maxKeys, nil
}

func (a *Adapter) Track(_ context.Context, key string, ev strategy.Event, cfg storage.TrackConfig, strat strategy.Strategy) (storage.TrackResult, error) {
	unlock := a.keys.Lock(key)
	defer unlock()

	now := a.now()

	a.mu.RLock()
	existing, ok := a.records[key]
	a.mu.RUnlock()

	var prior *record.Record
	if ok && storage.Freshness(existing, now, ev.DetailsHash) {
		prior = a.cloneOut(existing)
	}

	if prior == nil {
		a.mu.RLock()
		size := int64(len(a.records))
		_, hadOld := a.records[key]
		a.mu.RUnlock()

		// Reinitializing an existing (but stale) key never counts against
		// maxKeys; only a brand-new key does.
		if !hadOld && cfg.MaxKeys > 0 && size >= cfg.MaxKeys {
			return storage.TrackResult{
				Outcome: strategy.Ignored,
				Reason:  strategy.ReasonKeyLimitReached,
			}, nil
		}
	}

	outcome, next, reason := strat.Decide(prior, ev, now, cfg.Config)
	next.Key = key

	stored := a.cloneIn(next)
	a.mu.Lock()
	a.records[key] = stored
	if stored.Deferred {
		a.deferredKeys[key] = struct{}{}
	} else {
		delete(a.deferredKeys, key)
	}
	a.mu.Unlock()

	return storage.TrackResult{Outcome: outcome, Record: a.cloneOut(stored), Reason: reason}, nil
}

func (a *Adapter) FindDueDeferred(_ context.Context, nowMs int64) ([]*record.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]*record.Record, 0, len(a.deferredKeys))
	for key := range a.deferredKeys {
		r := a.records[key]
		if r == nil {
			continue
		}
		if r.ScheduledSendAt != nil && *r.ScheduledSendAt <= nowMs {
			out = append(out, a.cloneOut(r))
		}
	}
	return out, nil
}

func (a *Adapter) PopDueDeferred(_ context.Context, nowMs int64) ([]*record.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []*record.Record
	for key := range a.deferredKeys {
		r := a.records[key]
		if r == nil {
			delete(a.deferredKeys, key)
			continue
		}
		if r.ScheduledSendAt != nil && *r.ScheduledSendAt <= nowMs {
			out = append(out, a.cloneOut(r))
			delete(a.records, key)
			delete(a.deferredKeys, key)
		}
	}
	return out, nil
}

func (a *Adapter) FindAllDeferred(_ context.Context) ([]*record.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]*record.Record, 0, len(a.deferredKeys))
	for key := range a.deferredKeys {
		if r := a.records[key]; r != nil {
			out = append(out, a.cloneOut(r))
		}
	}
	return out, nil
}
