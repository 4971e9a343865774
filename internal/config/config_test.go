package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != ":8080" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.MongoURI == "" || cfg.MongoDatabase == "" {
		t.Fatalf("expected default mongo settings")
	}
	if cfg.LiveStoreTimeout != 2*time.Second {
		t.Fatalf("unexpected live store timeout: %v", cfg.LiveStoreTimeout)
	}
	if cfg.DisconnectGrace != 30*time.Second {
		t.Fatalf("unexpected disconnect grace: %v", cfg.DisconnectGrace)
	}
	if cfg.PingBurst != 10 {
		t.Fatalf("unexpected ping burst: %d", cfg.PingBurst)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MONGO_URI", "mongodb://example:27017")
	t.Setenv("REDIS_ADDR", "redis://cache:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LIVE_STORE_TIMEOUT", "500ms")
	t.Setenv("STALE_AFTER", "1m")
	t.Setenv("PING_RATE_PER_SEC", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != ":9000" {
		t.Fatalf("expected override port, got %q", cfg.Port)
	}
	if cfg.MongoURI != "mongodb://example:27017" {
		t.Fatalf("expected override mongo")
	}
	if cfg.RedisAddr != "cache:6379" {
		t.Fatalf("expected redis scheme stripped, got %q", cfg.RedisAddr)
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.LiveStoreTimeout != 500*time.Millisecond {
		t.Fatalf("expected override timeout, got %v", cfg.LiveStoreTimeout)
	}
	if cfg.StaleAfter != time.Minute {
		t.Fatalf("expected override stale window, got %v", cfg.StaleAfter)
	}
	if cfg.PingRatePerSec != 2.5 {
		t.Fatalf("expected override rate, got %v", cfg.PingRatePerSec)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"STALE_SCAN_INTERVAL", "10", "decode config"},
		{"STALE_SCAN_INTERVAL", "0s", "STALE_SCAN_INTERVAL"},
		{"LIVE_STORE_TIMEOUT", "fast", "decode config"},
		{"DISCONNECT_GRACE", "-1s", "DISCONNECT_GRACE"},
		{"LIST_CACHE_TTL", "-2s", "LIST_CACHE_TTL"},
		{"PING_BURST", "many", "decode config"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadAllowsDisabledListCache(t *testing.T) {
	t.Setenv("LIST_CACHE_TTL", "0s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListCacheTTL != 0 {
		t.Fatalf("expected disabled list cache, got %v", cfg.ListCacheTTL)
	}
}
