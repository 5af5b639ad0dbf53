// Package redis implements the distributed storage.Adapter over Redis.
// Compound operations (Track, PopDueDeferred, AcquireKeySlot) run as
// server-side Lua scripts so that the load-decide-write sequence is
// indivisible without a client-side lock; Update, which takes an arbitrary
// Go closure the server cannot run, instead uses optimistic WATCH/MULTI/EXEC
// with a bounded retry count.
package redis

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/throttlekeep/log"
	"github.com/justapithecus/throttlekeep/record"
	"github.com/justapithecus/throttlekeep/storage"
	"github.com/justapithecus/throttlekeep/strategy"
)

//go:embed lua/track.lua
var trackScriptSrc string

//go:embed lua/pop_due_deferred.lua
var popDueDeferredScriptSrc string

//go:embed lua/acquire_key_slot.lua
var acquireKeySlotScriptSrc string

//go:embed lua/set.lua
var setScriptSrc string

//go:embed lua/delete.lua
var deleteScriptSrc string

// DefaultUpdateRetries bounds the WATCH/MULTI/EXEC retry loop in Update.
const DefaultUpdateRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is a redis:// or rediss:// connection string, parsed with
	// redis.ParseURL.
	URL string
	// Prefix namespaces every key this adapter owns. Defaults to
	// "event-tracker".
	Prefix string
	// DialTimeout and CommandTimeout bound connection setup and individual
	// command round trips respectively.
	DialTimeout    time.Duration
	CommandTimeout time.Duration
	// Logger receives adapter-level diagnostics. Defaults to a no-op logger.
	Logger *log.Logger
	// Client, when set, is used instead of dialing URL. Intended for
	// tests against miniredis or a shared *redis.Client the caller owns;
	// Close will not close a client supplied this way.
	Client *goredis.Client
}

// Adapter is the Redis-backed storage.Adapter implementation.
type Adapter struct {
	client    *goredis.Client
	ownClient bool
	prefix    string
	logger    *log.Logger

	trackScript           *goredis.Script
	popDueDeferredScript  *goredis.Script
	acquireKeySlotScript  *goredis.Script
	setScript             *goredis.Script
	deleteScript          *goredis.Script

	cmdTimeout time.Duration
}

var _ storage.Adapter = (*Adapter)(nil)

// New dials (or adopts) a Redis client per cfg and prepares the adapter's
// Lua scripts. Scripts are loaded lazily by go-redis on first EVALSHA miss,
// so no round trip happens here.
func New(cfg Config) (*Adapter, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Noop()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "event-tracker"
	}

	client := cfg.Client
	ownClient := false
	if client == nil {
		opts, err := goredis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		if cfg.DialTimeout > 0 {
			opts.DialTimeout = cfg.DialTimeout
		}
		client = goredis.NewClient(opts)
		ownClient = true
	}

	return &Adapter{
		client:               client,
		ownClient:            ownClient,
		prefix:               cfg.Prefix,
		logger:               cfg.Logger,
		trackScript:          goredis.NewScript(trackScriptSrc),
		popDueDeferredScript: goredis.NewScript(popDueDeferredScriptSrc),
		acquireKeySlotScript: goredis.NewScript(acquireKeySlotScriptSrc),
		setScript:            goredis.NewScript(setScriptSrc),
		deleteScript:         goredis.NewScript(deleteScriptSrc),
		cmdTimeout:           cfg.CommandTimeout,
	}, nil
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cmdTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.cmdTimeout)
}

func (a *Adapter) hashKey(key string) string     { return a.prefix + ":" + key }
func (a *Adapter) deferredSetKey() string        { return a.prefix + ":deferred-set" }
func (a *Adapter) sizeKey() string               { return a.prefix + ":size" }

func (a *Adapter) Get(ctx context.Context, key string) (*record.Record, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	m, err := a.client.HGetAll(ctx, a.hashKey(key)).Result()
	if err != nil {
		return nil, wrapError(err, "get", key)
	}
	r, err := recordFromHash(m)
	if err != nil {
		return nil, wrapError(err, "get", key)
	}
	return r, nil
}

func (a *Adapter) Set(ctx context.Context, key string, r *record.Record) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	fields, err := hashFields(r)
	if err != nil {
		return wrapError(err, "set", key)
	}

	args := make([]any, 0, len(fields))
	// fields is [name1, val1, name2, val2, ...]; the script only needs the
	// values, in the fixed order it documents.
	for i := 1; i < len(fields); i += 2 {
		args = append(args, fields[i])
	}

	keys := []string{a.hashKey(key), a.deferredSetKey(), a.sizeKey()}
	setArgs := append([]any{key}, args[1:]...)
	setArgs = append(setArgs, nowMillis())
	if err := a.setScript.Run(ctx, a.client, keys, setArgs...).Err(); err != nil {
		return wrapError(err, "set", key)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	keys := []string{a.hashKey(key), a.deferredSetKey(), a.sizeKey()}
	if err := a.deleteScript.Run(ctx, a.client, keys, key).Err(); err != nil {
		return wrapError(err, "delete", key)
	}
	return nil
}

// Update applies fn under optimistic concurrency: WATCH the hash key, read
// and transform it, then commit via MULTI/EXEC. A concurrent writer between
// the read and the commit aborts the transaction with redis.TxFailedErr,
// which is retried until DefaultUpdateRetries attempts in all have failed.
func (a *Adapter) Update(ctx context.Context, key string, fn storage.UpdateFunc) (bool, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	hkey := a.hashKey(key)
	var found bool

	for attempt := 0; attempt < DefaultUpdateRetries; attempt++ {
		err := a.client.Watch(ctx, func(tx *goredis.Tx) error {
			m, err := tx.HGetAll(ctx, hkey).Result()
			if err != nil {
				return err
			}
			existing, err := recordFromHash(m)
			if err != nil {
				return err
			}
			if existing == nil {
				found = false
				return nil
			}
			found = true

			next, err := fn(existing)
			if err != nil {
				return err
			}
			if next == nil {
				return nil
			}
			next.Key = key

			fields, err := hashFields(next)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.HSet(ctx, hkey, fields...)
				ttl := time.Duration(next.ExpiresAt-nowMillis()) * time.Millisecond
				if ttl <= 0 {
					ttl = time.Millisecond
				}
				pipe.Expire(ctx, hkey, ttl)
				if next.Deferred && next.ScheduledSendAt != nil {
					pipe.ZAdd(ctx, a.deferredSetKey(), goredis.Z{Score: float64(*next.ScheduledSendAt), Member: key})
				} else {
					pipe.ZRem(ctx, a.deferredSetKey(), key)
				}
				return nil
			})
			return err
		}, hkey)

		if err == nil {
			return found, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return false, wrapError(err, "update", key)
	}

	return false, wrapError(goredis.TxFailedErr, "update", key)
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func (a *Adapter) Size(ctx context.Context) (int64, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	v, err := a.client.Get(ctx, a.sizeKey()).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapError(err, "size", "")
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n, nil
}

func (a *Adapter) AcquireKeySlot(ctx context.Context, key string, maxKeys int64) (bool, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	keys := []string{a.hashKey(key), a.sizeKey()}
	v, err := a.acquireKeySlotScript.Run(ctx, a.client, keys, maxKeys).Int64()
	if err != nil {
		return false, wrapError(err, "acquire_key_slot", key)
	}
	return v == 1, nil
}

func (a *Adapter) Track(ctx context.Context, key string, ev strategy.Event, cfg storage.TrackConfig, strat strategy.Strategy) (storage.TrackResult, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	details, err := marshalAny(ev.Details)
	if err != nil {
		return storage.TrackResult{}, wrapError(err, "track", key)
	}

	now := nowMillis()
	keys := []string{a.hashKey(key), a.deferredSetKey(), a.sizeKey()}
	argv := []any{
		key, ev.Category, ev.ID, details, ev.DetailsHash,
		now, cfg.ExpireTime, cfg.MaxKeys, strat.Type(),
		cfg.Limit, cfg.DeferInterval, cfg.BucketSize, cfg.RefillRate, cfg.WindowSize,
	}

	res, err := a.trackScript.Run(ctx, a.client, keys, argv...).Result()
	if err != nil {
		return storage.TrackResult{}, wrapError(err, "track", key)
	}

	parts, ok := res.([]any)
	if !ok || len(parts) != 7 {
		return storage.TrackResult{}, wrapError(fmt.Errorf("track: unexpected script result shape"), "track", key)
	}

	outcome := strategy.Outcome(toString(parts[0]))
	reason := toString(parts[6])

	if outcome == strategy.Ignored && reason == strategy.ReasonKeyLimitReached {
		return storage.TrackResult{Outcome: outcome, Reason: reason}, nil
	}

	count, _ := toInt64(parts[1])
	scheduledStr := toString(parts[2])
	expiresAt, _ := toInt64(parts[3])
	configJSON := toString(parts[4])
	strategyDataJSON := toString(parts[5])

	r := &record.Record{
		Key:           key,
		Category:      ev.Category,
		ID:            ev.ID,
		Details:       ev.Details,
		DetailsHash:   ev.DetailsHash,
		Count:         count,
		LastEventTime: now,
		ExpiresAt:     expiresAt,
		Deferred:      outcome == strategy.Deferred || (outcome == strategy.Ignored && reason == strategy.ReasonAlreadyDeferred),
		StrategyType:  strat.Type(),
	}
	if scheduledStr != "" {
		if v, err := strconv.ParseInt(scheduledStr, 10, 64); err == nil {
			r.ScheduledSendAt = &v
		}
	}
	if configJSON != "" {
		_ = unmarshalInto(configJSON, &r.Config)
	}
	if strategyDataJSON != "" {
		_ = unmarshalInto(strategyDataJSON, &r.StrategyData)
	}

	return storage.TrackResult{Outcome: outcome, Record: r, Reason: reason}, nil
}

func (a *Adapter) FindDueDeferred(ctx context.Context, nowMs int64) ([]*record.Record, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	keys, err := a.client.ZRangeByScore(ctx, a.deferredSetKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(nowMs, 10),
	}).Result()
	if err != nil {
		return nil, wrapError(err, "find_due_deferred", "")
	}

	out := make([]*record.Record, 0, len(keys))
	for _, k := range keys {
		m, err := a.client.HGetAll(ctx, a.hashKey(k)).Result()
		if err != nil {
			return nil, wrapError(err, "find_due_deferred", k)
		}
		r, err := recordFromHash(m)
		if err != nil {
			return nil, wrapError(err, "find_due_deferred", k)
		}
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (a *Adapter) PopDueDeferred(ctx context.Context, nowMs int64) ([]*record.Record, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	keys := []string{a.prefix + ":", a.deferredSetKey(), a.sizeKey()}
	res, err := a.popDueDeferredScript.Run(ctx, a.client, keys, nowMs).Result()
	if err != nil {
		return nil, wrapError(err, "pop_due_deferred", "")
	}

	flat, ok := res.([]any)
	if !ok {
		return nil, wrapError(fmt.Errorf("pop_due_deferred: unexpected script result shape"), "pop_due_deferred", "")
	}

	out, err := parseFlatRecords(flat)
	if err != nil {
		return nil, wrapError(err, "pop_due_deferred", "")
	}
	return out, nil
}

func (a *Adapter) FindAllDeferred(ctx context.Context) ([]*record.Record, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	keys, err := a.client.ZRange(ctx, a.deferredSetKey(), 0, -1).Result()
	if err != nil {
		return nil, wrapError(err, "find_all_deferred", "")
	}

	out := make([]*record.Record, 0, len(keys))
	for _, k := range keys {
		m, err := a.client.HGetAll(ctx, a.hashKey(k)).Result()
		if err != nil {
			return nil, wrapError(err, "find_all_deferred", k)
		}
		r, err := recordFromHash(m)
		if err != nil {
			return nil, wrapError(err, "find_all_deferred", k)
		}
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (a *Adapter) Close() error {
	if a.ownClient {
		return a.client.Close()
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("redis: cannot convert %T to int64", v)
	}
}

func unmarshalInto(s string, dst any) error {
	return json.Unmarshal([]byte(s), dst)
}
