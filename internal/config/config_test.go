package config

import "testing"

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	clearEnv(t, "BIND_ADDRESS", "RTMP_PORT", "MAX_CHUNK_SIZE", "MAX_IP_CONNECTIONS", "REDIS_USE", "LOG_REQUESTS")

	cfg := Load()
	if cfg.BindAddr != "0.0.0.0" {
		t.Fatalf("expected default bind address, got %q", cfg.BindAddr)
	}
	if cfg.Port != 1935 {
		t.Fatalf("expected default RTMP port 1935, got %d", cfg.Port)
	}
	if cfg.MaxChunkSize != 1480 {
		t.Fatalf("expected default chunk size 1480, got %d", cfg.MaxChunkSize)
	}
	if cfg.RedisUse {
		t.Fatalf("expected RedisUse to default to false")
	}
	if !cfg.RequestsLog {
		t.Fatalf("expected RequestsLog to default to true (only LOG_REQUESTS=NO disables it)")
	}
}

func TestLoadHonorsEnvironmentOverrides(t *testing.T) {
	t.Setenv("RTMP_PORT", "19350")
	t.Setenv("MAX_CHUNK_SIZE", "not-a-number")
	t.Setenv("REDIS_USE", "YES")

	cfg := Load()
	if cfg.Port != 19350 {
		t.Fatalf("expected overridden port 19350, got %d", cfg.Port)
	}
	if cfg.MaxChunkSize != 1480 {
		t.Fatalf("expected an unparseable override to fall back to the default, got %d", cfg.MaxChunkSize)
	}
	if !cfg.RedisUse {
		t.Fatalf("expected RedisUse to be true when REDIS_USE=YES")
	}
}
