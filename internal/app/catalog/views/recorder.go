package views

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"pix.local/internal/platform/metrics"
)

var ErrEmptyItemID = errors.New("empty item id")

// MarkerSpec 描述一次需要下发给客户端的去重标记（HTTP 层翻译成 Set-Cookie）。
type MarkerSpec struct {
	Name string
	TTL  time.Duration
}

// Result 是一次浏览事件的处理结果。
// AlreadyCounted 为 true 时计数器没有任何变更，也不下发新标记。
type Result struct {
	AlreadyCounted bool
	Marker         *MarkerSpec
}

// Recorder 处理单次浏览事件：去重判断 + 计数器自增。
// 无共享状态，多个请求并发调用互不影响。
type Recorder struct {
	store    CounterStore
	dedupTTL time.Duration
}

func NewRecorder(store CounterStore, dedupTTL time.Duration) *Recorder {
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	return &Recorder{store: store, dedupTTL: dedupTTL}
}

// Record 记录一次对 itemID 的浏览。
//
// alreadyViewed 是“请求里是否带着未过期的去重标记”——只做存在性判断，
// 不关心标记的值。带标记的重复浏览直接短路，幂等。
//
// 计数存储故障只记日志不报错：浏览量是尽力而为的旁路统计，
// 绝不能因为它不可用而挡住内容本身的返回。
func (r *Recorder) Record(ctx context.Context, itemID string, alreadyViewed bool) (Result, error) {
	if itemID == "" {
		return Result{}, ErrEmptyItemID
	}
	if alreadyViewed {
		metrics.ViewsDeduped.Inc()
		return Result{AlreadyCounted: true}, nil
	}

	if err := r.increment(ctx, CounterKey(itemID)); err != nil {
		slog.Error("view counter store error", "err", err, "item_id", itemID)
	} else {
		metrics.ViewsRecorded.Inc()
	}

	// 标记照发：就算这一次没计上数，也没必要让同一个人 24h 内反复触发写入。
	return Result{
		Marker: &MarkerSpec{Name: MarkerName(itemID), TTL: r.dedupTTL},
	}, nil
}

func (r *Recorder) increment(ctx context.Context, key string) error {
	// 有原生原子自增就用（Redis INCRBY）。
	if inc, ok := r.store.(atomicIncrementer); ok {
		return inc.IncrBy(ctx, key, 1)
	}

	// 退化路径：读-加-写。两个并发请求可能读到同一个旧值导致少计一次，
	// 这是该原语的已知弱点；计数只会偏小，不会出现负数或脏值。
	val, _, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	n := parseCount(val)
	return r.store.Put(ctx, key, strconv.FormatInt(n+1, 10))
}
