package stats

import (
	"sync"
	"testing"
	"time"
)

func TestChannelCollectorDropsWhenFull(t *testing.T) {
	c := NewChannelCollector(1)
	defer c.Close()

	c.Collect(ViewEvent{ImageID: "a", ViewedAt: time.Now()})
	c.Collect(ViewEvent{ImageID: "b", ViewedAt: time.Now()}) // 缓冲满，静默丢弃

	select {
	case ev := <-c.Events():
		if ev.ImageID != "a" {
			t.Fatalf("image id = %q, want a", ev.ImageID)
		}
	default:
		t.Fatal("expected one buffered event")
	}
	select {
	case ev := <-c.Events():
		t.Fatalf("second event should have been dropped, got %+v", ev)
	default:
	}
}

func TestChannelCollectorCollectAfterClose(t *testing.T) {
	c := NewChannelCollector(4)
	c.Close()
	c.Close() // 重复 Close 也不 panic

	// 关闭之后继续 Collect 必须是安静的 no-op
	c.Collect(ViewEvent{ImageID: "late", ViewedAt: time.Now()})

	if _, ok := <-c.Events(); ok {
		t.Fatal("channel should be closed and drained")
	}
}

// Close 和并发的 Collect 赛跑：任何交错都不能 panic（send on closed channel）。
func TestChannelCollectorConcurrentCollectAndClose(t *testing.T) {
	c := NewChannelCollector(8)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 100; j++ {
				c.Collect(ViewEvent{ImageID: "x", ViewedAt: time.Now()})
			}
		}()
	}

	close(start)
	c.Close()
	wg.Wait()
}
