// Package ratelimit counts requests per key in fixed windows, in process
// or in Redis when several API instances share one limit.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is one key's counter after a hit.
type Window struct {
	Count   int
	ResetIn time.Duration
}

// Store counts a hit for key and returns the current window.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration) (Window, error)
}

// =============================================================================
// MemoryStore
// =============================================================================

type memoryWindow struct {
	count     int
	expiresAt time.Time
}

// MemoryStore keeps windows in a map. Expired keys are collected lazily.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
	lastGC  time.Time
}

// NewMemoryStore creates a store; now may be nil for time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		windows: make(map[string]*memoryWindow),
		now:     now,
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastGC) > window {
		for k, w := range s.windows {
			if !now.Before(w.expiresAt) {
				delete(s.windows, k)
			}
		}
		s.lastGC = now
	}

	w, ok := s.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = &memoryWindow{expiresAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return Window{Count: w.count, ResetIn: w.expiresAt.Sub(now)}, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// =============================================================================
// RedisStore
// =============================================================================

// hitScript increments the counter, starts the window on the first hit and
// returns {count, pttl} atomically.
var hitScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return {count, ttl}
`)

// RedisStore shares windows across processes.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (Window, error) {
	res, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("rate limit hit: %w", err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("rate limit hit: unexpected reply %v", res)
	}
	return Window{Count: int(res[0]), ResetIn: time.Duration(res[1]) * time.Millisecond}, nil
}

// =============================================================================
// FallbackStore
// =============================================================================

// FallbackStore uses primary and switches to secondary for any hit primary
// fails, so a Redis outage degrades to per-instance limits.
type FallbackStore struct {
	primary   Store
	secondary Store
	onError   func(error)
}

func NewFallbackStore(primary, secondary Store, onError func(error)) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary, onError: onError}
}

func (s *FallbackStore) Hit(ctx context.Context, key string, window time.Duration) (Window, error) {
	w, err := s.primary.Hit(ctx, key, window)
	if err == nil {
		return w, nil
	}
	if s.onError != nil {
		s.onError(err)
	}
	return s.secondary.Hit(ctx, key, window)
}
