package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/justapithecus/throttlekeep/config"
	"github.com/justapithecus/throttlekeep/log"
	"github.com/justapithecus/throttlekeep/metrics"
	"github.com/justapithecus/throttlekeep/storage"
	"github.com/justapithecus/throttlekeep/storage/memory"
	"github.com/justapithecus/throttlekeep/storage/redis"
	"github.com/justapithecus/throttlekeep/strategy"
	"github.com/justapithecus/throttlekeep/tracker"
)

// buildTracker loads a config file and constructs a tracker wired to the
// backend, strategy, and metrics it selects. Every command shares this
// path so `track`, `inspect`, `stats`, and `serve` see identical state.
func buildTracker(cfgPath string) (*tracker.Tracker, *metrics.Collector, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	// Each process gets its own instance ID so log aggregation can tell
	// apart concurrent throttlekeepd processes sharing one Redis backend.
	instanceID := uuid.NewString()
	logger := log.NewLogger(log.Context{Tracker: "throttlekeep-" + instanceID[:8]})

	adapter, err := buildAdapter(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building storage adapter: %w", err)
	}

	strat, err := buildStrategy(cfg.Strategy.Type)
	if err != nil {
		return nil, nil, fmt.Errorf("building strategy: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(prometheus.DefaultRegisterer, cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	}

	// An omitted engine.* key stays nil through config.EngineConfig, so it
	// carries straight through to tracker.Config as nil too and lets
	// withDefaults apply the package default. A present key — including an
	// explicit zero — is converted and addressed here.
	var deferInterval, expireTime *int64
	if cfg.Engine.DeferInterval != nil {
		v := cfg.Engine.DeferInterval.Duration.Milliseconds()
		deferInterval = &v
	}
	if cfg.Engine.ExpireTime != nil {
		v := cfg.Engine.ExpireTime.Duration.Milliseconds()
		expireTime = &v
	}

	t, err := tracker.New(tracker.Config{
		Limit:              cfg.Engine.Limit,
		DeferInterval:      deferInterval,
		ExpireTime:         expireTime,
		BucketSize:         cfg.Strategy.BucketSize,
		RefillRate:         cfg.Strategy.RefillRate,
		WindowSize:         cfg.Strategy.WindowSize.Duration.Milliseconds(),
		MaxKeys:            cfg.Engine.MaxKeys,
		Storage:            adapter,
		Strategy:           strat,
		ProcessingInterval: cfg.Engine.ProcessingInterval.Duration,
		MaxRetries:         cfg.Engine.MaxRetries,
		RetryDelay:         cfg.Engine.RetryDelay.Duration,
		Logger:             logger,
		Metrics:            collector,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("constructing tracker: %w", err)
	}

	return t, collector, nil
}

func buildAdapter(cfg config.StorageConfig, logger *log.Logger) (storage.Adapter, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.New(memory.Config{
			PurgeInterval: cfg.PurgeInterval.Duration,
			Logger:        logger,
		}), nil
	case "redis":
		return redis.New(redis.Config{
			URL:            cfg.RedisURL,
			Prefix:         cfg.RedisPrefix,
			DialTimeout:    cfg.RedisDialTimeout.Duration,
			CommandTimeout: cfg.RedisCommandTimeout.Duration,
			Logger:         logger,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func buildStrategy(strategyType string) (strategy.Strategy, error) {
	switch strategyType {
	case "", strategy.TypeSimple:
		return strategy.Simple{}, nil
	case strategy.TypeTokenBucket:
		return strategy.TokenBucket{}, nil
	case strategy.TypeSlidingWindow:
		return strategy.SlidingWindow{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy type %q", strategyType)
	}
}
