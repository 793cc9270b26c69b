package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	windowStart time.Time
	count       int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter. State is
// process-local; horizontally scaled deployments use the Redis backend.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow counts the attempt and checks it against the window's limit.
// Attempts are counted even when rejected.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" || window <= 0 {
		return Result{Allowed: true}, nil
	}

	l.mu.Lock()
	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{windowStart: now}
		l.counters[key] = entry
	}
	if now.Sub(entry.windowStart) >= window {
		entry.windowStart = now
		entry.count = 0
	}
	entry.count++
	count := entry.count
	reset := entry.windowStart.Add(window)
	l.mu.Unlock()

	if count > limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	return Result{Allowed: true, Remaining: limit - count, Reset: reset}, nil
}
