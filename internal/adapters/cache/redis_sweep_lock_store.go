package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSweepLockStore implements the sweep leader lock with SET NX plus TTL.
// The TTL bounds how long a crashed worker can hold the lock.
type RedisSweepLockStore struct {
	client *redis.Client
}

// NewRedisSweepLockStore creates a sweep lock store backed by Redis.
func NewRedisSweepLockStore(client *redis.Client) *RedisSweepLockStore {
	return &RedisSweepLockStore{client: client}
}

func (s *RedisSweepLockStore) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, "escrow:lock:"+name, "1", ttl).Result()
}

func (s *RedisSweepLockStore) Release(ctx context.Context, name string) error {
	return s.client.Del(ctx, "escrow:lock:"+name).Err()
}
