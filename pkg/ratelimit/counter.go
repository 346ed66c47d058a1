package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter atomically increments a windowed counter. The window starts with
// the first increment; count and the time left in the window are returned.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// incrScript sets the expiry only on the first increment of a window, and
// repairs keys that somehow lost theirs.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisCounter is a Counter shared by every instance using the same Redis
type RedisCounter struct {
	client redis.Scripter
}

// NewRedisCounter creates a RedisCounter
func NewRedisCounter(client redis.Scripter) *RedisCounter {
	return &RedisCounter{client: client}
}

// Incr implements Counter
func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected counter reply for %s: %v", key, res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

type memoryEntry struct {
	count   int64
	resetAt time.Time
}

// sweepEvery is the number of increments between expired-entry sweeps
const sweepEvery = 1024

// MemoryCounter is a per-process Counter
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	calls   int
	now     func() time.Time
}

// NewMemoryCounter creates a MemoryCounter. now may be nil.
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{entries: make(map[string]*memoryEntry), now: now}
}

// Incr implements Counter. It never fails.
func (m *MemoryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweep(now)
	}

	e, ok := m.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &memoryEntry{resetAt: now.Add(window)}
		m.entries[key] = e
	}
	e.count++
	return e.count, e.resetAt.Sub(now), nil
}

// Len returns the number of tracked keys
func (m *MemoryCounter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryCounter) sweep(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.resetAt) {
			delete(m.entries, k)
		}
	}
}
