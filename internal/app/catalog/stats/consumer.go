package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Consumer 批量落库浏览明细。
// 注意：这里只写 view_events，不碰 images.views ——
// 持久计数由计数器聚合管道统一累加，两边各记各的，互不重复。
type Consumer struct {
	db        *pgxpool.Pool
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(db *pgxpool.Pool, collector *ChannelCollector) *Consumer {
	return &Consumer{
		db:        db,
		collector: collector,
		batchSize: 100,         //批量写入大小
		interval:  time.Second, //最大等待时间
	}
}

// 阻塞 消费循环
func (c *Consumer) Run(ctx context.Context) {
	batch := make([]ViewEvent, 0, c.batchSize)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flush(batch) //清理剩余事件
			return
		case event, ok := <-c.collector.Events():
			if !ok {
				c.flush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				c.flush(batch)
				batch = batch[:0] //清空切片，但保留容量不变，避免反复分配内存
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (c *Consumer) flush(batch []ViewEvent) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := c.db.Begin(ctx)
	if err != nil {
		slog.Error("view stats: begin tx failed", "err", err)
		return
	}
	defer tx.Rollback(context.Background())

	for _, e := range batch {
		if _, err := tx.
			Exec(ctx, `INSERT INTO view_events (image_id,viewed_at,ip,user_agent,referer) VALUES ($1,$2,$3,$4,$5)`, e.ImageID, e.ViewedAt, e.IP, e.UserAgent, e.Referer); err != nil {
			slog.Error("view stats: insert failed", "err", err, "image_id", e.ImageID)
			continue
		}
	}

	if err := tx.Commit(ctx); err != nil {
		slog.Error("view stats: commit failed", "err", err)
	} else {
		slog.Debug("view stats: flushed", "count", len(batch))
	}
}
