package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("expected memory backend, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.TTLDays != 7 {
		t.Fatalf("expected 7 day ttl, got %d", cfg.Cache.TTLDays)
	}
	if cfg.Cache.MaxAudioSizeMB != 10 {
		t.Fatalf("expected 10mb audio cap, got %d", cfg.Cache.MaxAudioSizeMB)
	}
	if cfg.Synth.TimeoutMS != 5000 {
		t.Fatalf("expected 5000ms synth timeout, got %d", cfg.Synth.TimeoutMS)
	}
}

func TestLoadFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "voiced.yaml")
	data := []byte(`
cache:
  backend: redis
  redis_addr: cache.internal:6379
  ttl_days: 3
synth:
  mode: exec
  command: piper --output-raw
  default_voice: en_US-amy-medium
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisAddr != "cache.internal:6379" {
		t.Fatalf("expected redis backend from file, got %+v", cfg.Cache)
	}
	if cfg.Cache.TTLDays != 3 {
		t.Fatalf("expected ttl override, got %d", cfg.Cache.TTLDays)
	}
	if cfg.Synth.Mode != "exec" {
		t.Fatalf("expected exec synth mode, got %q", cfg.Synth.Mode)
	}
	// untouched sections keep defaults
	if cfg.HTTP.Port != 8090 {
		t.Fatalf("expected default http port, got %d", cfg.HTTP.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOICED_CACHE_BACKEND", "redis")
	t.Setenv("VOICED_CACHE_REDIS_ADDR", "redis-0:6379")
	t.Setenv("VOICED_CACHE_TTL_DAYS", "14")
	t.Setenv("VOICED_SYNTH_TIMEOUT_MS", "2500")
	t.Setenv("VOICED_HUB_AUTH_TOKEN", "s3cret")
	t.Setenv("VOICED_BUS_ENABLED", "true")
	t.Setenv("VOICED_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VOICED_USAGE_LOG_RETENTION_MODE", "persistent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisAddr != "redis-0:6379" {
		t.Fatalf("expected redis override, got %+v", cfg.Cache)
	}
	if cfg.Cache.TTLDays != 14 {
		t.Fatalf("expected ttl override 14, got %d", cfg.Cache.TTLDays)
	}
	if cfg.Synth.TimeoutMS != 2500 {
		t.Fatalf("expected synth timeout override, got %d", cfg.Synth.TimeoutMS)
	}
	if cfg.Hub.AuthToken != "s3cret" {
		t.Fatalf("expected hub auth token override")
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 bus servers, got %v", cfg.Bus.Servers)
	}
	if cfg.UsageLog.RetentionMode != "persistent" {
		t.Fatalf("expected retention mode override")
	}
}

func TestValidateRejectsBadBackend(t *testing.T) {
	cfg := Default()
	cfg.Cache.Backend = "memcached"
	if err := validate(cfg); err == nil {
		t.Fatal("expected validation error for unknown cache backend")
	}
}

func TestValidateExecNeedsCommand(t *testing.T) {
	cfg := Default()
	cfg.Synth.Mode = "exec"
	cfg.Synth.Command = ""
	if err := validate(cfg); err == nil {
		t.Fatal("expected validation error for exec mode without command")
	}
}
