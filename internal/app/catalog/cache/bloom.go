package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 挡掉对不存在图片 id 的查询（浏览计数接口最容易被乱扫）。
type BloomFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewBloomFilter 创建布隆过滤器
// expectedItems: 预期图片数量
// falsePositiveRate: 误判率（建议 0.01 即 1%）
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	return &BloomFilter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

func (b *BloomFilter) Add(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.AddString(id)
}

// MightExist 返回 false 表示一定不存在；true 表示可能存在（有误判率）
func (b *BloomFilter) MightExist(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.TestString(id)
}

// Count 返回已添加的元素数量（估算）
func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}
