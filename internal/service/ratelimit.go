package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds how often a key may perform an action within a window.
type RateLimiter interface {
	// Allow reports whether the key is under its limit and counts the attempt.
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisRateLimiter implements a fixed-window counter in Redis. The first
// increment in a window sets the TTL, so the window slides per key.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedisRateLimiter creates a Redis-backed rate limiter.
func NewRedisRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow increments the key's counter and reports whether it is within the limit.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	fullKey := l.prefix + ":" + key

	count, err := l.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, fullKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	return count <= int64(l.limit), nil
}

// MemoryRateLimiter is an in-process fixed-window limiter used when Redis is
// unavailable (tests, local development).
type MemoryRateLimiter struct {
	mu      sync.Mutex
	counts  map[string]*windowCount
	limit   int
	window  time.Duration
	now     func() time.Time
	sweepAt time.Time
}

type windowCount struct {
	count int
	reset time.Time
}

// NewMemoryRateLimiter creates an in-memory rate limiter.
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		counts: make(map[string]*windowCount),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow increments the key's counter and reports whether it is within the limit.
func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	wc, ok := l.counts[key]
	if !ok || now.After(wc.reset) {
		l.counts[key] = &windowCount{count: 1, reset: now.Add(l.window)}
		return true, nil
	}

	wc.count++
	return wc.count <= l.limit, nil
}

// sweep drops expired windows at most once per window so the map does not
// grow with every key ever seen. Callers must hold the mutex.
func (l *MemoryRateLimiter) sweep(now time.Time) {
	if now.Before(l.sweepAt) {
		return
	}
	for key, wc := range l.counts {
		if now.After(wc.reset) {
			delete(l.counts, key)
		}
	}
	l.sweepAt = now.Add(l.window)
}
