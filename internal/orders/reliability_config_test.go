package orders

import (
	"testing"
	"time"
)

func TestLoadReliabilityConfigFromEnv_Parses(t *testing.T) {
	t.Setenv("SAGA_RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("SAGA_RETRY_BASE_DELAY", "50ms")
	t.Setenv("SAGA_RETRY_MAX_DELAY", "500ms")
	t.Setenv("SAGA_BREAKER_MAX_FAILURES", "4")
	t.Setenv("SAGA_BREAKER_RESET_TIMEOUT", "2s")
	t.Setenv("SAGA_RATE_LIMIT_INTERVAL", "1ms")
	t.Setenv("SAGA_RATE_LIMIT_BURST", "100")

	cfg, err := LoadReliabilityConfigFromEnv()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Fatalf("expected retry attempts 3, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.RetryBaseDelay != 50*time.Millisecond {
		t.Fatalf("expected retry base delay 50ms, got %v", cfg.RetryBaseDelay)
	}
	if cfg.RetryMaxDelay != 500*time.Millisecond {
		t.Fatalf("expected retry max delay 500ms, got %v", cfg.RetryMaxDelay)
	}
	if cfg.BreakerMaxFailures != 4 {
		t.Fatalf("expected breaker failures 4, got %d", cfg.BreakerMaxFailures)
	}
	if cfg.BreakerResetTimeout != 2*time.Second {
		t.Fatalf("expected breaker reset 2s, got %v", cfg.BreakerResetTimeout)
	}
	if cfg.RateLimitInterval != time.Millisecond {
		t.Fatalf("expected rate interval 1ms, got %v", cfg.RateLimitInterval)
	}
	if cfg.RateLimitBurst != 100 {
		t.Fatalf("expected rate burst 100, got %d", cfg.RateLimitBurst)
	}

	limiter, breaker, retry := cfg.Controls()
	if limiter == nil || breaker == nil {
		t.Fatalf("expected limiter and breaker")
	}
	if retry.MaxAttempts != 3 {
		t.Fatalf("expected retry attempts 3, got %d", retry.MaxAttempts)
	}
}

func TestLoadReliabilityConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadReliabilityConfigFromEnv()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg != DefaultReliabilityConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if limiter, _, retry := cfg.Controls(); limiter != nil || retry.MaxAttempts != 1 {
		t.Fatalf("expected no limiter and a single attempt, got %v %+v", limiter, retry)
	}
}

func TestLoadReliabilityConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("SAGA_RETRY_MAX_ATTEMPTS", "-1")
	if _, err := LoadReliabilityConfigFromEnv(); err == nil {
		t.Fatalf("expected negative value error")
	}

	t.Setenv("SAGA_RETRY_MAX_ATTEMPTS", "2")
	t.Setenv("SAGA_BREAKER_RESET_TIMEOUT", "soon")
	if _, err := LoadReliabilityConfigFromEnv(); err == nil {
		t.Fatalf("expected duration parse error")
	}
}
