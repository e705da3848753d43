package stats

import (
	"sync"
	"time"
)

//浏览事件（分析用明细，和持久计数走不同的管道）
type ViewEvent struct {
	ImageID   string
	ViewedAt  time.Time //浏览时间
	IP        string    //浏览者的IP
	UserAgent string    //客户端信息（浏览器、操作系统）
	Referer   string    //从哪个页面点进来的
}

// Collector 收集器接口（方便后续换 Kafka）
type Collector interface {
	Collect(event ViewEvent)
	Close()
}

// ChannelCollector 基于 channel 的收集器。
// Collect 持读锁、Close 持写锁再关 channel：保证关闭时没有并发的发送在途，
// 不会 send on closed channel。
type ChannelCollector struct {
	mu       sync.RWMutex
	ch       chan ViewEvent
	closed   bool
	closeOne sync.Once
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{
		ch: make(chan ViewEvent, bufferSize),
	}
}

func (c *ChannelCollector) Collect(event ViewEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
	default:
		// 通道满了，丢弃。明细是尽力而为的，计数不走这里
	}
}

func (c *ChannelCollector) Events() <-chan ViewEvent {
	return c.ch
}

func (c *ChannelCollector) Close() {
	c.closeOne.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.ch)
		c.mu.Unlock()
	})
}
