package tracker

import (
	"fmt"
	"math"
	"time"

	"github.com/justapithecus/throttlekeep/log"
	"github.com/justapithecus/throttlekeep/metrics"
	"github.com/justapithecus/throttlekeep/record"
	"github.com/justapithecus/throttlekeep/storage"
	"github.com/justapithecus/throttlekeep/strategy"
)

// Default tuning values, applied to any zero-valued field left unset in a
// Config passed to New.
const (
	DefaultLimit              = 5
	DefaultDeferInterval       = 3_600_000
	DefaultExpireTime          = 86_400_000
	DefaultProcessingInterval = 10_000 * time.Millisecond
	DefaultMaxRetries         = 3
	DefaultRetryDelay         = 1_000 * time.Millisecond
	MinProcessingInterval     = 10 * time.Millisecond
)

// ProcessorFunc consumes a batch of deferred records popped from storage.
// A non-nil error triggers ProcessDeferredEvents' retry sequence.
type ProcessorFunc func(events []*record.Record) error

// Config is the tracker's tuning and wiring surface. Numeric fields mirror
// record.Config. Limit, DeferInterval, and ExpireTime are pointers so that
// withDefaults can tell "left unset" (nil, fill in the package default)
// apart from "explicitly set to zero" (honor it) — the same distinction
// record.ScheduledSendAt draws between "not deferred" and "deferred at
// time zero". A plain int64 here would make a caller-supplied 0 ineligible
// to ever be its own value, which defeats the documented zero-valued
// limit/deferInterval boundary behaviors. BucketSize, RefillRate, and
// WindowSize have no package default to fall back to, so they stay plain
// values; MaxKeys = 0 is already meaningful (unlimited) and needs no
// defaulting either.
type Config struct {
	Limit         *int64
	DeferInterval *int64
	ExpireTime    *int64
	BucketSize    float64
	RefillRate    float64
	WindowSize    int64
	MaxKeys       int64

	// Storage backs every tracked identity. Defaults to a storage/memory
	// adapter if nil.
	Storage storage.Adapter
	// Strategy decides outcomes. Defaults to strategy.Simple{} if nil.
	Strategy strategy.Strategy
	// Processor, if set, is invoked with each batch of due deferred
	// records. Leaving it nil makes ProcessDeferredEvents a read-only
	// peek (findDueDeferred) and disables the processing timer.
	Processor ProcessorFunc

	ProcessingInterval time.Duration
	MaxRetries         int
	RetryDelay         time.Duration

	// Now overrides time.Now, for tests.
	Now func() int64

	// Logger receives lifecycle diagnostics. Defaults to a no-op logger.
	Logger *log.Logger

	// Metrics, if set, receives per-event and per-batch counters. A nil
	// Collector is safe to call into and simply records nothing.
	Metrics *metrics.Collector
}

// ConfigError distinguishes the two classes of synchronous constructor
// failure the spec calls out: a wrong-kind value ("type") versus a
// wrong-range one ("range"). Go's static typing already rules out most
// type errors at the Config-struct boundary; withDefaults reports a NaN or
// infinite numeric field as Kind == "type" and a negative one as
// Kind == "range". The YAML config loader returns its own plain errors.
type ConfigError struct {
	Field string
	Kind  string // "type" or "range"
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("tracker: config field %q (%s): %v", e.Field, e.Kind, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func rangeError(field string, err error) error {
	return &ConfigError{Field: field, Kind: "range", Err: err}
}

func typeError(field string, err error) error {
	return &ConfigError{Field: field, Kind: "type", Err: err}
}

func int64Ptr(v int64) *int64 { return &v }

// withDefaults returns a copy of cfg with every unset tunable filled in
// and validates every numeric field is finite and non-negative. The
// processing interval is clamped to MinProcessingInterval rather than
// rejected, per the boundary rule in the spec.
func (cfg Config) withDefaults() (Config, error) {
	out := cfg

	if out.Limit == nil {
		out.Limit = int64Ptr(DefaultLimit)
	}
	if out.DeferInterval == nil {
		out.DeferInterval = int64Ptr(DefaultDeferInterval)
	}
	if out.ExpireTime == nil {
		out.ExpireTime = int64Ptr(DefaultExpireTime)
	}
	if out.ProcessingInterval == 0 {
		out.ProcessingInterval = DefaultProcessingInterval
	}
	if out.MaxRetries == 0 {
		out.MaxRetries = DefaultMaxRetries
	}
	if out.RetryDelay == 0 {
		out.RetryDelay = DefaultRetryDelay
	}
	if out.ProcessingInterval < MinProcessingInterval {
		out.ProcessingInterval = MinProcessingInterval
	}
	if out.Now == nil {
		out.Now = func() int64 { return time.Now().UnixMilli() }
	}
	if out.Logger == nil {
		out.Logger = log.Noop()
	}

	for _, f := range []struct {
		name string
		val  float64
	}{
		{"limit", float64(*out.Limit)},
		{"deferInterval", float64(*out.DeferInterval)},
		{"expireTime", float64(*out.ExpireTime)},
		{"bucketSize", out.BucketSize},
		{"refillRate", out.RefillRate},
		{"windowSize", float64(out.WindowSize)},
		{"maxKeys", float64(out.MaxKeys)},
		{"maxRetries", float64(out.MaxRetries)},
	} {
		if math.IsNaN(f.val) || math.IsInf(f.val, 0) {
			return Config{}, typeError(f.name, fmt.Errorf("must be a finite number, got %v", f.val))
		}
		if f.val < 0 {
			return Config{}, rangeError(f.name, fmt.Errorf("must be non-negative, got %v", f.val))
		}
	}

	if out.ProcessingInterval < 0 || out.RetryDelay < 0 {
		return Config{}, rangeError("processingInterval/retryDelay", fmt.Errorf("must be non-negative"))
	}
	if out.ProcessingInterval < MinProcessingInterval {
		out.ProcessingInterval = MinProcessingInterval
	}

	// Non-negative isn't strict enough for these two: a zero divisor feeds
	// straight into TokenBucket's and SlidingWindow's rate math and
	// produces Inf/NaN rather than a clean error.
	if out.Strategy != nil && isValidStrategy(out.Strategy) {
		switch out.Strategy.Type() {
		case strategy.TypeTokenBucket:
			if out.RefillRate <= 0 {
				return Config{}, rangeError("refillRate", fmt.Errorf("must be positive for the token-bucket strategy, got %v", out.RefillRate))
			}
		case strategy.TypeSlidingWindow:
			if out.WindowSize <= 0 {
				return Config{}, rangeError("windowSize", fmt.Errorf("must be positive for the sliding-window strategy, got %v", out.WindowSize))
			}
		}
	}

	return out, nil
}

// recordConfig snapshots cfg into a record.Config. It assumes cfg has
// already passed through withDefaults, so Limit, DeferInterval, and
// ExpireTime are guaranteed non-nil.
func (cfg Config) recordConfig() record.Config {
	return record.Config{
		Limit:         *cfg.Limit,
		DeferInterval: *cfg.DeferInterval,
		ExpireTime:    *cfg.ExpireTime,
		BucketSize:    cfg.BucketSize,
		RefillRate:    cfg.RefillRate,
		WindowSize:    cfg.WindowSize,
	}
}
