package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCache 基于 ristretto 的本地内存缓存，存图片元数据的 JSON 串
type LocalCache struct {
	cache    *ristretto.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewLocalCache 创建本地缓存
// maxItems: 最大缓存条目数
// maxCost: 最大内存占用（字节）。元数据条目比短链大，按字节数计 cost
func NewLocalCache(maxItems int64, maxCost int64) (*LocalCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10, // 计数器数量，建议为 maxItems 的 10 倍
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		cache:    cache,
		ttl:      5 * time.Minute,  // 本地缓存 TTL 短一些，保证多实例一致性
		emptyTTL: 10 * time.Second, // 负缓存 TTL
	}, nil
}

func (l *LocalCache) Get(id string) (string, bool) {
	if v, ok := l.cache.Get(id); ok {
		return v.(string), true
	}
	return "", false
}

func (l *LocalCache) Set(id, payload string) {
	l.cache.SetWithTTL(id, payload, int64(len(payload)), l.ttl)
}

func (l *LocalCache) SetNotFound(id string) {
	l.cache.SetWithTTL(id, notFoundSentinel, 1, l.emptyTTL)
}

func (l *LocalCache) Del(id string) {
	l.cache.Del(id)
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
