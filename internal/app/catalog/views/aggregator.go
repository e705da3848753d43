package views

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"pix.local/internal/platform/metrics"
)

// DurableStore 是浏览量的最终落库目标（Postgres images.views）。
// 实现必须是相对自增（views = views + n），不能读出来再写绝对值，
// 否则并发写同一行会互相覆盖。
type DurableStore interface {
	IncrementViewCount(ctx context.Context, itemID string, amount int64) error
}

type ItemError struct {
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
}

type Summary struct {
	Updated int         `json:"updated"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// pendingUpdate 只在单轮聚合内部存在，不落盘。
type pendingUpdate struct {
	itemID string
	amount int64
}

// Aggregator 周期性地把快速存储里的计数清空并应用到持久库。
// 触发时机由外部（ticker / 管理接口）决定，本身只是个可按需调用的纯函数。
type Aggregator struct {
	store   CounterStore
	durable DurableStore
}

func NewAggregator(store CounterStore, durable DurableStore) *Aggregator {
	return &Aggregator{store: store, durable: durable}
}

// Run 执行一轮聚合：扫描 → 排空 → 并发落库。
//
// 计数器在读到值之后、落库成功之前就被删除（delete-after-read）。
// 这样即使两轮聚合重叠，同一个计数也绝不会被应用两次；代价是
// 删除和落库之间进程崩溃会丢掉那一批增量。宁可少计，不可多计。
func (a *Aggregator) Run(ctx context.Context) (Summary, error) {
	tracer := otel.Tracer("views")
	ctx, span := tracer.Start(ctx, "views.aggregate")
	defer span.End()

	var pending []pendingUpdate
	var scanErr error

	cursor := ""
	for {
		keys, next, err := a.store.List(ctx, counterPrefix, cursor)
		if err != nil {
			// 扫描断了就到此为止，但已经排空的计数必须继续落库，否则白删了。
			scanErr = fmt.Errorf("counter scan: %w", err)
			slog.Error("view flush: scan failed", "err", err)
			break
		}

		for _, key := range keys {
			val, _, err := a.store.Get(ctx, key)
			if err != nil {
				// 读失败就整条跳过（也不删），留给下一轮。
				slog.Error("view flush: read counter failed", "err", err, "key", key)
				continue
			}
			n := parseCount(val)

			if err := a.store.Delete(ctx, key); err != nil {
				// 删除失败时放弃本轮的这条增量：计数器还活着，
				// 下一轮会重新读到；现在落库就会重复计数。
				slog.Error("view flush: delete counter failed", "err", err, "key", key)
				continue
			}
			metrics.ViewCountersDrained.Inc()

			if n > 0 {
				pending = append(pending, pendingUpdate{
					itemID: strings.TrimPrefix(key, counterPrefix),
					amount: n,
				})
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}

	summary := a.apply(ctx, pending)

	span.SetAttributes(
		attribute.Int("views.pending", len(pending)),
		attribute.Int("views.updated", summary.Updated),
		attribute.Int("views.errors", len(summary.Errors)),
	)
	if len(pending) > 0 || len(summary.Errors) > 0 {
		slog.Info("view flush done",
			"pending", len(pending),
			"updated", summary.Updated,
			"errors", len(summary.Errors))
	}

	return summary, scanErr
}

// apply 并发执行落库。同一轮里每个 item 至多一条更新（一个 item 只有一个计数 key），
// 所以不同更新之间没有顺序约束。单条失败只收集，不中断其它更新，也不重试——
// 对应的计数器已经删了，这批增量就地丢弃。
func (a *Aggregator) apply(ctx context.Context, pending []pendingUpdate) Summary {
	var summary Summary
	if len(pending) == 0 {
		return summary
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range pending {
		wg.Add(1)
		go func(p pendingUpdate) {
			defer wg.Done()
			if err := a.durable.IncrementViewCount(ctx, p.itemID, p.amount); err != nil {
				slog.Error("view flush: durable increment failed", "err", err, "item_id", p.itemID)
				metrics.ViewFlushErrors.Inc()
				mu.Lock()
				summary.Errors = append(summary.Errors, ItemError{ItemID: p.itemID, Message: err.Error()})
				mu.Unlock()
				return
			}
			mu.Lock()
			summary.Updated++
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	return summary
}
