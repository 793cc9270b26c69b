package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/plotark/plotark/internal/config"
)

func TestManager_MemoryFallbackWhenRedisDisabled(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	manager := NewManager(func() config.RateLimitConfig {
		return config.RateLimitConfig{}
	}, func() time.Time { return now }, nil)

	key := AddressKey("203.0.113.9", WindowDay)
	if result, err := manager.Allow(context.Background(), key, 1, 24*time.Hour); err != nil || !result.Allowed {
		t.Fatalf("expected first request allowed, got %+v err=%v", result, err)
	}
	if result, err := manager.Allow(context.Background(), key, 1, 24*time.Hour); err != nil || result.Allowed {
		t.Fatalf("expected second request rejected, got %+v err=%v", result, err)
	}
}

func TestManager_RedisFailureTripsBreaker(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	manager := NewManager(func() config.RateLimitConfig {
		// Redis enabled but no address: ensureRedis fails and trips the breaker.
		return config.RateLimitConfig{RedisEnabled: true}
	}, func() time.Time { return now }, nil)

	key := AddressKey("203.0.113.9", WindowHour)
	result, err := manager.Allow(context.Background(), key, 2, time.Hour)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected memory fallback to allow the request")
	}
	if !manager.isBreakerActive(now.Add(time.Second)) {
		t.Fatalf("expected breaker to be active after redis failure")
	}
	if manager.isBreakerActive(now.Add(redisBreakerDuration + time.Second)) {
		t.Fatalf("expected breaker to clear after its duration")
	}
}

func TestAddressKey(t *testing.T) {
	if got := AddressKey("203.0.113.9", WindowDay); got != "ip:203.0.113.9:day" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := AddressKey("", WindowDay); got != "" {
		t.Fatalf("expected empty key for empty address, got %q", got)
	}
}
