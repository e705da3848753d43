package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once 用来保证指标只注册一次。
	// Prometheus 的 registry 不允许重复注册同名指标，否则会直接 panic。
	once sync.Once

	// HTTPRequestsTotal：累计请求数（Counter）。
	//
	// labels：
	// - method：HTTP 方法，例如 GET/POST
	// - route：路由模板（用 pattern，例如 /api/v1/photos/{id}；不要用带 id 的真实 path，否则会产生无限label）
	// - status：HTTP 状态码字符串，例如 "200"/"401"/"500"
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds：请求耗时分布（Histogram），用于算 P95/P99。
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPInflightRequests：当前正在处理中的请求数（Gauge）。
	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// ViewsRecorded：去重后真正计入的浏览事件数。
	ViewsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_views_recorded_total",
			Help: "View events accepted into the counter store.",
		},
	)

	// ViewsDeduped：因 24h cookie 命中而被忽略的浏览事件数。
	ViewsDeduped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_views_deduped_total",
			Help: "View events skipped by the dedup cookie.",
		},
	)

	// ViewCountersDrained：聚合任务每轮清空的计数器条目数。
	ViewCountersDrained = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "view_counters_drained_total",
			Help: "Counter keys drained by the batch aggregator.",
		},
	)

	// ViewFlushErrors：聚合任务落库失败的条目数。
	ViewFlushErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "view_flush_errors_total",
			Help: "Durable increments that failed during aggregation.",
		},
	)

	// CacheOperations：图片元数据缓存命中情况（L1/L2 × hit/miss/hit_negative）。
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_cache_operations_total",
			Help: "Photo metadata cache operations by layer and outcome.",
		},
		[]string{"layer", "outcome"},
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			ViewsRecorded,
			ViewsDeduped,
			ViewCountersDrained,
			ViewFlushErrors,
			CacheOperations,
		)
	})
}
