// Package views 实现浏览量统计的两段式管道：
// 请求侧按 24h cookie 去重后把增量累加进快速计数存储（Redis），
// 定时任务把所有待落库的计数清空并原子地加到 images.views 上。
package views

import "context"

// 计数 key 统一加前缀，聚合任务按这个前缀扫描。
const counterPrefix = "view_count:"

// 去重 cookie 的命名约定：viewed_<id>，由浏览器持有，服务端只读/写，不存。
const markerPrefix = "viewed_"

func CounterKey(itemID string) string { return counterPrefix + itemID }

func MarkerName(itemID string) string { return markerPrefix + itemID }

// CounterStore 是快速计数存储的最小抽象。
//
// 值是十进制整数字符串。List 按前缀做游标分页扫描：
// next 为空串表示扫描结束；cursor 第一轮传空串。
type CounterStore interface {
	// Get 返回 key 的当前值；第二个返回值表示 key 是否存在。
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string, cursor string) (keys []string, next string, err error)
}

// atomicIncrementer 是可选的能力升级：如果底层存储有原生的原子自增
// （Redis INCRBY），Recorder 会用它代替 get+put，消除并发丢增量的窗口。
type atomicIncrementer interface {
	IncrBy(ctx context.Context, key string, n int64) error
}
