package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocalCacheSetGet(t *testing.T) {
	lc, err := NewLocalCache(1000, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer lc.Close()

	lc.Set("id-1", `{"title":"x"}`)
	// ristretto 的写入是异步的，留一点时间
	time.Sleep(20 * time.Millisecond)

	got, ok := lc.Get("id-1")
	if !ok || got != `{"title":"x"}` {
		t.Fatalf("got %q ok=%v", got, ok)
	}

	lc.Del("id-1")
	time.Sleep(20 * time.Millisecond)
	if _, ok := lc.Get("id-1"); ok {
		t.Fatal("deleted entry still present")
	}
}

func TestLocalCacheNegativeEntry(t *testing.T) {
	lc, err := NewLocalCache(1000, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer lc.Close()

	lc.SetNotFound("missing-id")
	time.Sleep(20 * time.Millisecond)

	got, ok := lc.Get("missing-id")
	if !ok || got != notFoundSentinel {
		t.Fatalf("got %q ok=%v, want sentinel", got, ok)
	}
}

func TestBloomFilter(t *testing.T) {
	bf := NewBloomFilter(1000, 0.01)
	bf.Add("known-id")

	if !bf.MightExist("known-id") {
		t.Fatal("added id must test positive")
	}
	if bf.MightExist("definitely-unknown-id-123456") {
		t.Skip("false positive hit, acceptable at 1% rate")
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skip: redis not available at %s: %v", addr, err)
	}
	return client
}

func TestPhotoCacheRoundTrip(t *testing.T) {
	client := newTestRedis(t)
	pc := NewPhotoCache(client, nil) // 只测 L2，绕开 ristretto 的异步性

	ctx := context.Background()
	id := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() { client.Del(context.Background(), "img:"+id) })

	// 未命中
	payload, negative, err := pc.Get(ctx, id)
	if err != nil || payload != "" || negative {
		t.Fatalf("miss: payload=%q negative=%v err=%v", payload, negative, err)
	}

	// 写入后命中
	if err := pc.Set(ctx, id, `{"title":"sunset"}`); err != nil {
		t.Fatal(err)
	}
	payload, negative, err = pc.Get(ctx, id)
	if err != nil || negative || payload != `{"title":"sunset"}` {
		t.Fatalf("hit: payload=%q negative=%v err=%v", payload, negative, err)
	}

	// 负缓存
	if err := pc.SetNotFound(ctx, id); err != nil {
		t.Fatal(err)
	}
	_, negative, err = pc.Get(ctx, id)
	if err != nil || !negative {
		t.Fatalf("negative: negative=%v err=%v", negative, err)
	}

	// 删除后回到未命中
	if err := pc.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	payload, negative, _ = pc.Get(ctx, id)
	if payload != "" || negative {
		t.Fatalf("after delete: payload=%q negative=%v", payload, negative)
	}
}
