package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"pix.local/internal/platform/metrics"
)

const notFoundSentinel = "__nil__"

// PhotoCache 是图片详情的两级缓存（L1 本地 + L2 Redis）。
// 值是序列化好的元数据 JSON，由调用方编解码，缓存层只管字符串。
type PhotoCache struct {
	client   *redis.Client
	local    *LocalCache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewPhotoCache(client *redis.Client, local *LocalCache) *PhotoCache {
	return &PhotoCache{
		client:   client,
		local:    local,
		ttl:      time.Hour,
		emptyTTL: 30 * time.Second,
	}
}

// Get 返回 (payload, negative, err)。payload 为空且 negative=false 表示未命中。
func (c *PhotoCache) Get(ctx context.Context, id string) (string, bool, error) {
	// L1: 本地缓存
	if c.local != nil {
		if payload, ok := c.local.Get(id); ok {
			if payload == notFoundSentinel {
				metrics.CacheOperations.WithLabelValues("l1", "hit_negative").Inc()
				return "", true, nil
			}
			metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			return payload, false, nil
		}
	}

	// L2: Redis
	res, err := c.client.Get(ctx, "img:"+id).Result()
	if err == redis.Nil {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if res == notFoundSentinel {
		metrics.CacheOperations.WithLabelValues("l2", "hit_negative").Inc()
		if c.local != nil {
			c.local.SetNotFound(id)
		}
		return "", true, nil
	}
	metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()

	// 回填本地缓存
	if c.local != nil {
		c.local.Set(id, res)
	}
	return res, false, nil
}

func (c *PhotoCache) Set(ctx context.Context, id, payload string) error {
	if c.local != nil {
		c.local.Set(id, payload)
	}
	return c.client.Set(ctx, "img:"+id, payload, c.ttl).Err()
}

func (c *PhotoCache) Delete(ctx context.Context, id string) error {
	if c.local != nil {
		c.local.Del(id)
	}
	return c.client.Del(ctx, "img:"+id).Err()
}

// SetNotFound 用明确哨兵值做"负缓存"，避免缓存穿透。
// 不要用 "" 作为哨兵值（容易把"未命中"和"命中空值"混淆）。
func (c *PhotoCache) SetNotFound(ctx context.Context, id string) error {
	if c.local != nil {
		c.local.SetNotFound(id)
	}
	return c.client.Set(ctx, "img:"+id, notFoundSentinel, c.emptyTTL).Err()
}

func (c *PhotoCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("本地缓存已关闭")
	}
}
