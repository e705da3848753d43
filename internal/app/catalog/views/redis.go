package views

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore 用 Redis 实现 CounterStore。
// 同时实现了 IncrBy，所以线上路径天然没有 get+put 的竞态。
type RedisCounterStore struct {
	client *redis.Client
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisCounterStore) Put(ctx context.Context, key string, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisCounterStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// List 用 SCAN 游标分页；Redis 的 cursor 是数字，这里统一转成字符串，
// "0" 回绕表示扫描结束，对外映射成空串。
func (s *RedisCounterStore) List(ctx context.Context, prefix string, cursor string) ([]string, string, error) {
	var cur uint64
	if cursor != "" {
		n, err := parseUint(cursor)
		if err != nil {
			return nil, "", err
		}
		cur = n
	}

	keys, next, err := s.client.Scan(ctx, cur, prefix+"*", 100).Result()
	if err != nil {
		return nil, "", err
	}
	if next == 0 {
		return keys, "", nil
	}
	return keys, formatUint(next), nil
}

func (s *RedisCounterStore) IncrBy(ctx context.Context, key string, n int64) error {
	return s.client.IncrBy(ctx, key, n).Err()
}
