package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"guardian-api/pkg/logging"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter allows one action per key per window
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

// RedisLimiter keeps rate-limit markers in Redis so every instance
// shares them
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter creates a limiter backed by client
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow sets a marker that lives for window; it is allowed only if no
// marker was already present
func (r *RedisLimiter) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, "rate_limit:"+key, "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return ok, nil
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is the single-process limiter used when Redis is not
// configured. Idle keys are dropped by a background sweep.
type MemoryLimiter struct {
	entries         map[string]*limiterEntry
	mutex           sync.Mutex
	cleanupInterval time.Duration
	now             func() time.Time
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryLimiter creates a limiter and starts its cleanup goroutine
func NewMemoryLimiter() *MemoryLimiter {
	m := &MemoryLimiter{
		entries:         make(map[string]*limiterEntry),
		cleanupInterval: 10 * time.Minute,
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
	}

	go m.startCleanupRoutine()

	return m
}

// Allow reports whether key may act now. Limiters are keyed by key and
// window together, so different windows never share a bucket.
func (m *MemoryLimiter) Allow(_ context.Context, key string, window time.Duration) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	id := fmt.Sprintf("%s|%s", key, window)
	entry, ok := m.entries[id]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(window), 1)}
		m.entries[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1), nil
}

func (m *MemoryLimiter) startCleanupRoutine() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup(time.Hour)
		case <-m.stopCleanup:
			return
		}
	}
}

// cleanup drops limiters idle for longer than ttl
func (m *MemoryLimiter) cleanup(ttl time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	initialCount := len(m.entries)
	for id, entry := range m.entries {
		if now.Sub(entry.lastSeen) > ttl {
			delete(m.entries, id)
		}
	}

	if cleaned := initialCount - len(m.entries); cleaned > 0 {
		logging.Debugf("Rate limiter cleanup: removed %d idle keys, remaining: %d", cleaned, len(m.entries))
	}
}

// Stop ends the cleanup goroutine
func (m *MemoryLimiter) Stop() {
	m.stopOnce.Do(func() { close(m.stopCleanup) })
}
