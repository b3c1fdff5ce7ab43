package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"adlign-personalization-layer/internal/ports"

	"github.com/redis/go-redis/v9"
)

const redisUpdateAttempts = 10

// RedisStore implements KVStore on Redis strings, one key per (bucket, key).
// Update uses WATCH/MULTI so concurrent writers on other instances retry
// instead of losing updates.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. Keys are namespaced as prefix:bucket:key.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "adlign"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromURL parses a redis:// URL and checks connectivity
func NewRedisStoreFromURL(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(client, prefix), nil
}

// Client exposes the underlying connection for components sharing it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) key(bucket, key string) string {
	return s.prefix + ":" + bucket + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key(bucket, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", bucket, key, err)
	}
	return value, nil
}

func (s *RedisStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(bucket, key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, bucket, key string, fn ports.UpdateFunc) error {
	k := s.key(bucket, key)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, k)
				return nil
			}
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to update %s/%s: %w", bucket, key, err)
		}
		return nil
	}
	return fmt.Errorf("failed to update %s/%s: too much contention", bucket, key)
}

func (s *RedisStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.Del(ctx, s.key(bucket, key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context, bucket string) ([]string, error) {
	prefix := s.key(bucket, "")
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", bucket, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *RedisStore) Close(ctx context.Context) error {
	return s.client.Close()
}
