package store

import (
	"context"
	"fmt"
	"time"

	apperrors "order_lifecycle/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements core.IKeyedStore against a shared Redis instance.
// This is the production backend: claims map to SET NX PX, so they hold
// across OS processes and hosts.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and verifies the server is reachable
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, apperrors.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get %s: %v", apperrors.ErrNetwork, key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("%w: redis set %s: %v", apperrors.ErrNetwork, key, err)
	}
	return nil
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set %s: %v", apperrors.ErrNetwork, key, err)
	}
	return nil
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis setnx %s: %v", apperrors.ErrNetwork, key, err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: redis del %s: %v", apperrors.ErrNetwork, key, err)
	}
	return nil
}

func (s *RedisStore) Push(ctx context.Context, key string, value []byte) error {
	if err := s.client.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("%w: redis rpush %s: %v", apperrors.ErrNetwork, key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, key string) ([][]byte, error) {
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis lrange %s: %v", apperrors.ErrNetwork, key, err)
	}

	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) AddToSet(ctx context.Context, key, member string) error {
	if err := s.client.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("%w: redis sadd %s: %v", apperrors.ErrNetwork, key, err)
	}
	return nil
}

func (s *RedisStore) IsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis sismember %s: %v", apperrors.ErrNetwork, key, err)
	}
	return ok, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
