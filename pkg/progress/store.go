package progress

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps progress counters in redis. INCRBYFLOAT gives the
// atomicity the chunk workers need without a lock.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a redis backed progress store. Keys expire
// after ttl so finished jobs do not accumulate forever; a zero ttl
// keeps them indefinitely.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisStore) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	value, err := s.client.IncrByFloat(ctx, key, delta).Result()
	if err != nil {
		return 0, err
	}
	if s.ttl > 0 {
		s.client.Expire(ctx, key, s.ttl)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value float64) error {
	return s.client.Set(ctx, key, value, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (float64, bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// MemoryStore is an in-process store for tests and single node use.
type MemoryStore struct {
	mutex  sync.Mutex
	values map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]float64),
	}
}

func (s *MemoryStore) IncrByFloat(_ context.Context, key string, delta float64) (float64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.values[key] += delta
	return s.values[key], nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value float64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (float64, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	value, ok := s.values[key]
	return value, ok, nil
}
