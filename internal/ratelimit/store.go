package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore holds expiring integer counters. Incr must be atomic across
// concurrent callers and processes.
type CounterStore interface {
	Get(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return n, nil
}

// Incr bumps the counter and arms its expiry in one MULTI block.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return incr.Val(), nil
}

type memEntry struct {
	value     int64
	expiresAt time.Time
}

// MemoryStore is a process-local CounterStore for single-node setups and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return 0, nil
	}
	return e.value, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e, ok := s.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		e = memEntry{expiresAt: now.Add(ttl)}
	}
	e.value++
	s.entries[key] = e
	return e.value, nil
}
