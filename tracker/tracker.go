// Package tracker implements the event aggregation and throttling engine:
// it validates configuration, binds a pluggable strategy to a storage
// adapter, routes tracked events through the atomic Track compound
// operation, and runs a self-rescheduling processing loop over the
// deferred set with bounded exponential-backoff retries.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justapithecus/throttlekeep/identity"
	"github.com/justapithecus/throttlekeep/record"
	"github.com/justapithecus/throttlekeep/storage"
	"github.com/justapithecus/throttlekeep/storage/memory"
	"github.com/justapithecus/throttlekeep/strategy"
)

// ErrDestroyed is returned by TrackEvent and ProcessDeferredEvents once
// Destroy has been called.
var ErrDestroyed = errors.New("tracker: destroyed")

// ErrInvalidEvent is returned when category or id is empty.
var ErrInvalidEvent = errors.New("tracker: category and id must be non-empty")

// ErrNilStrategy is returned by New when the configured Strategy fails the
// contract check (always a programmer error; a nil Strategy defaults to
// strategy.Simple{}, so this only fires for a typed-nil pointer
// implementing it).
var ErrNilStrategy = errors.New("tracker: strategy does not satisfy the strategy contract")

// Result is the outcome of a single TrackEvent call.
type Result struct {
	Type     strategy.Outcome
	Record   *record.Record
	Ignored  *IgnoredPayload
}

// Tracker is the event aggregation and throttling engine.
type Tracker struct {
	cfg      Config
	adapter  storage.Adapter
	strategy strategy.Strategy
	bus      *bus

	ownsAdapter bool

	processorMu sync.RWMutex
	processor   ProcessorFunc

	timerMu sync.Mutex
	timer   *time.Timer

	destroyed atomic.Bool
}

// New validates cfg, binds storage and strategy, and returns a ready
// Tracker. No background loop starts until a processor is set, through
// Config.Processor or SetProcessor.
func New(cfg Config) (*Tracker, error) {
	resolved, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	var ownsAdapter bool
	adapter := resolved.Storage
	if adapter == nil {
		adapter = memory.New(memory.Config{Logger: resolved.Logger, Now: resolved.Now})
		ownsAdapter = true
	}

	strat := resolved.Strategy
	if strat == nil {
		strat = strategy.Simple{}
	}
	if !isValidStrategy(strat) {
		if ownsAdapter {
			_ = adapter.Close()
		}
		return nil, ErrNilStrategy
	}

	t := &Tracker{
		cfg:         resolved,
		adapter:     adapter,
		strategy:    strat,
		bus:         newBus(),
		ownsAdapter: ownsAdapter,
	}

	if resolved.Processor != nil {
		t.processor = resolved.Processor
		t.startProcessingLoop()
	}

	return t, nil
}

// isValidStrategy guards against a typed-nil interface value, the one way
// Go lets a value satisfy an interface at compile time yet be unusable at
// runtime (a nil *T passed where T implements Strategy via pointer
// receiver).
func isValidStrategy(s strategy.Strategy) bool {
	if s == nil {
		return false
	}
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return false
	}
	return true
}

// GenerateCompositeKey exposes the identity package's composite-key
// derivation as a tracker-level static helper.
func GenerateCompositeKey(category, id string) (string, error) {
	return identity.CompositeKey(category, id)
}

// GenerateDetailsHash exposes the identity package's canonical fingerprint
// as a tracker-level static helper.
func GenerateDetailsHash(details any) string {
	return identity.DetailsHash(details)
}

// TrackEvent computes the event's identity and fingerprint, delegates to
// the storage adapter's atomic Track operation, publishes the matching
// lifecycle notification, and returns the uniform Result shape.
func (t *Tracker) TrackEvent(ctx context.Context, category, id string, details any) (Result, error) {
	if t.destroyed.Load() {
		return Result{}, ErrDestroyed
	}
	if category == "" || id == "" {
		return Result{}, ErrInvalidEvent
	}

	key, err := identity.CompositeKey(category, id)
	if err != nil {
		return Result{}, fmt.Errorf("tracker: track event: %w", err)
	}
	detailsHash := identity.DetailsHash(details)

	ev := strategy.Event{
		Key:         key,
		Category:    category,
		ID:          id,
		Details:     details,
		DetailsHash: detailsHash,
	}
	trackCfg := storage.TrackConfig{Config: t.cfg.recordConfig(), MaxKeys: t.cfg.MaxKeys}

	res, err := t.adapter.Track(ctx, key, ev, trackCfg, t.strategy)
	if err != nil {
		t.bus.publish(EventError, err)
		return Result{}, fmt.Errorf("tracker: track event: %w", err)
	}

	t.cfg.Metrics.IncEvent(string(res.Outcome))

	switch res.Outcome {
	case strategy.Immediate:
		t.bus.publish(EventImmediate, res.Record)
		return Result{Type: res.Outcome, Record: res.Record}, nil
	case strategy.Deferred:
		t.bus.publish(EventDeferred, res.Record)
		return Result{Type: res.Outcome, Record: res.Record}, nil
	default:
		payload := &IgnoredPayload{Reason: res.Reason, Category: category, ID: id, Details: details}
		t.bus.publish(EventIgnored, payload)
		return Result{Type: res.Outcome, Ignored: payload}, nil
	}
}

// ProcessDeferredEvents drains due deferred records. With no processor
// configured it is a non-destructive peek; with one configured it pops the
// batch and runs it through the retry sequence described on the package.
func (t *Tracker) ProcessDeferredEvents(ctx context.Context) ([]*record.Record, error) {
	if t.destroyed.Load() {
		return nil, ErrDestroyed
	}

	now := t.cfg.Now()

	t.processorMu.RLock()
	proc := t.processor
	t.processorMu.RUnlock()

	if proc == nil {
		return t.adapter.FindDueDeferred(ctx, now)
	}

	events, err := t.adapter.PopDueDeferred(ctx, now)
	if err != nil {
		t.bus.publish(EventError, err)
		return nil, fmt.Errorf("tracker: pop due deferred: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		lastErr = proc(events)
		if lastErr == nil {
			for _, ev := range events {
				t.bus.publish(EventProcessed, ev)
				t.cfg.Metrics.IncProcessed()
			}
			return events, nil
		}

		if attempt == t.cfg.MaxRetries {
			break
		}

		delay := t.cfg.RetryDelay * time.Duration(1<<uint(attempt))
		t.bus.publish(EventRetry, RetryPayload{
			Attempt:    attempt + 1,
			MaxRetries: t.cfg.MaxRetries,
			Delay:      delay.Milliseconds(),
			Events:     events,
		})
		t.cfg.Metrics.IncRetry()
		t.sleep(ctx, delay)
	}

	t.cfg.Metrics.IncProcessFailure()
	t.bus.publish(EventProcessFailed, ProcessFailedPayload{
		Err:      lastErr,
		Events:   events,
		Attempts: t.cfg.MaxRetries + 1,
	})
	t.bus.publish(EventError, lastErr)
	return nil, fmt.Errorf("tracker: processor exhausted retries: %w", lastErr)
}

func (t *Tracker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// UpdateConfig atomically merges newConfig's non-zero fields into the
// identity's stored config snapshot. Returns false if the identity has no
// live record.
func (t *Tracker) UpdateConfig(ctx context.Context, category, id string, newConfig record.Config) (bool, error) {
	if t.destroyed.Load() {
		return false, ErrDestroyed
	}

	key, err := identity.CompositeKey(category, id)
	if err != nil {
		return false, fmt.Errorf("tracker: update config: %w", err)
	}

	var updated *record.Record
	ok, err := t.adapter.Update(ctx, key, func(r *record.Record) (*record.Record, error) {
		mergeConfig(&r.Config, newConfig)
		updated = r
		return r, nil
	})
	if err != nil {
		return false, fmt.Errorf("tracker: update config: %w", err)
	}
	if !ok {
		return false, nil
	}

	t.bus.publish(EventConfigUpdated, updated)
	return true, nil
}

// mergeConfig copies every non-zero field of src into dst, preserving
// fields src leaves at its zero value. Unlike tracker.Config, whose
// pointer fields tell an explicit zero from an unset value, this path
// cannot set a field to zero.
func mergeConfig(dst *record.Config, src record.Config) {
	if src.Limit != 0 {
		dst.Limit = src.Limit
	}
	if src.DeferInterval != 0 {
		dst.DeferInterval = src.DeferInterval
	}
	if src.ExpireTime != 0 {
		dst.ExpireTime = src.ExpireTime
	}
	if src.BucketSize != 0 {
		dst.BucketSize = src.BucketSize
	}
	if src.RefillRate != 0 {
		dst.RefillRate = src.RefillRate
	}
	if src.WindowSize != 0 {
		dst.WindowSize = src.WindowSize
	}
}

// GetDeferredEvents returns every currently deferred record, regardless of
// schedule.
func (t *Tracker) GetDeferredEvents(ctx context.Context) ([]*record.Record, error) {
	if t.destroyed.Load() {
		return nil, ErrDestroyed
	}
	return t.adapter.FindAllDeferred(ctx)
}

// ImportRecord upserts r directly into storage, bypassing strategy
// evaluation. Intended for restoring a snapshot taken via GetDeferredEvents
// (or a storage export), not for tracking live events.
func (t *Tracker) ImportRecord(ctx context.Context, r *record.Record) error {
	if t.destroyed.Load() {
		return ErrDestroyed
	}
	if r == nil {
		return fmt.Errorf("tracker: cannot import a nil record")
	}
	return t.adapter.Set(ctx, r.Key, r)
}

// SetProcessor installs fn as the batch processor and, if this is the
// first processor the tracker has had, starts the self-rescheduling
// processing loop.
func (t *Tracker) SetProcessor(fn ProcessorFunc) {
	t.processorMu.Lock()
	hadProcessor := t.processor != nil
	t.processor = fn
	t.processorMu.Unlock()

	if fn != nil && !hadProcessor && !t.destroyed.Load() {
		t.startProcessingLoop()
	}
}

// startProcessingLoop schedules the first tick of the recursive
// single-shot processing timer. Using time.AfterFunc rather than a Ticker
// guarantees the loop never re-enters itself while a prior tick's
// ProcessDeferredEvents call (including its retry sleeps) is still
// running.
func (t *Tracker) startProcessingLoop() {
	t.timerMu.Lock()
	defer t.timerMu.Unlock()
	if t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(t.cfg.ProcessingInterval, t.tick)
}

func (t *Tracker) tick() {
	if t.destroyed.Load() {
		return
	}

	ctx := context.Background()
	if _, err := t.ProcessDeferredEvents(ctx); err != nil {
		t.cfg.Logger.Warn("processing tick failed", map[string]any{"error": err.Error()})
	}
	if remaining, err := t.adapter.FindAllDeferred(ctx); err != nil {
		t.bus.publish(EventError, err)
	} else {
		t.cfg.Metrics.SetDeferredSetSize(len(remaining))
	}

	t.timerMu.Lock()
	defer t.timerMu.Unlock()
	if t.destroyed.Load() {
		return
	}
	t.timer.Reset(t.cfg.ProcessingInterval)
}

// Destroy marks the tracker destroyed, stops the processing timer, closes
// the storage adapter, and removes every lifecycle subscriber. Safe to
// call more than once.
func (t *Tracker) Destroy() error {
	if !t.destroyed.CompareAndSwap(false, true) {
		return nil
	}

	t.timerMu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timerMu.Unlock()

	t.bus.clear()
	return t.adapter.Close()
}

// Subscribe registers fn to receive every payload published under event
// (one of the Event* constants). The returned closure unsubscribes.
func (t *Tracker) Subscribe(event string, fn func(payload any)) func() {
	return t.bus.Subscribe(event, fn)
}
