package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFullConfig(t *testing.T) {
	yaml := `engine:
  limit: 10
  defer_interval: 1h
  expire_time: 24h
  max_keys: 10000
  processing_interval: 10s
  max_retries: 3
  retry_delay: 1s

storage:
  backend: redis
  redis_url: redis://localhost:6379
  redis_prefix: event-tracker
  redis_dial_timeout: 5s

strategy:
  type: token-bucket
  bucket_size: 5
  refill_rate: 10

metrics:
  enabled: true
  namespace: throttlekeep
  subsystem: tracker
  addr: :9090

log:
  level: info
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Engine.Limit == nil || *cfg.Engine.Limit != 10 {
		t.Errorf("engine.limit: got %v, want 10", cfg.Engine.Limit)
	}
	if cfg.Engine.DeferInterval == nil || cfg.Engine.DeferInterval.Duration != time.Hour {
		t.Errorf("engine.defer_interval: got %v, want 1h", cfg.Engine.DeferInterval)
	}
	if cfg.Engine.MaxRetries != 3 {
		t.Errorf("engine.max_retries: got %d, want 3", cfg.Engine.MaxRetries)
	}

	if cfg.Storage.Backend != "redis" {
		t.Errorf("storage.backend: got %q, want redis", cfg.Storage.Backend)
	}
	if cfg.Storage.RedisURL != "redis://localhost:6379" {
		t.Errorf("storage.redis_url: got %q", cfg.Storage.RedisURL)
	}
	if cfg.Storage.RedisDialTimeout.Duration != 5*time.Second {
		t.Errorf("storage.redis_dial_timeout: got %v, want 5s", cfg.Storage.RedisDialTimeout.Duration)
	}

	if cfg.Strategy.Type != "token-bucket" {
		t.Errorf("strategy.type: got %q, want token-bucket", cfg.Strategy.Type)
	}
	if cfg.Strategy.BucketSize != 5 {
		t.Errorf("strategy.bucket_size: got %v, want 5", cfg.Strategy.BucketSize)
	}

	if !cfg.Metrics.Enabled || cfg.Metrics.Namespace != "throttlekeep" {
		t.Errorf("metrics: got %+v", cfg.Metrics)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("log.level: got %q, want info", cfg.Log.Level)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeTemp(t, "engine:\n  limit: 5\n  bogus_field: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestLoadOmittedEngineFieldsStayNil(t *testing.T) {
	path := writeTemp(t, "storage:\n  backend: memory\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Engine.Limit != nil {
		t.Errorf("engine.limit: got %v, want nil", cfg.Engine.Limit)
	}
	if cfg.Engine.DeferInterval != nil {
		t.Errorf("engine.defer_interval: got %v, want nil", cfg.Engine.DeferInterval)
	}
	if cfg.Engine.ExpireTime != nil {
		t.Errorf("engine.expire_time: got %v, want nil", cfg.Engine.ExpireTime)
	}
}

func TestLoadExplicitZeroLimitIsPreserved(t *testing.T) {
	path := writeTemp(t, "engine:\n  limit: 0\n  defer_interval: 0s\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Engine.Limit == nil || *cfg.Engine.Limit != 0 {
		t.Errorf("engine.limit: got %v, want a pointer to 0", cfg.Engine.Limit)
	}
}

func TestLoadMissingFileReturnsClearError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestExpandEnvSubstitutesAndDefaults(t *testing.T) {
	t.Setenv("THROTTLEKEEP_REDIS_URL", "redis://prod:6379")

	got := ExpandEnv("redis_url: ${THROTTLEKEEP_REDIS_URL}\nother: ${UNSET_VAR:-fallback}\n")
	want := "redis_url: redis://prod:6379\nother: fallback\n"
	if got != want {
		t.Errorf("expand: got %q, want %q", got, want)
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "throttlekeep.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}
