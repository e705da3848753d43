package httpmiddleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"pix.local/internal/platform/metrics"
)

func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPInflightRequests.Inc()       //正在处理的请求数+1
		defer metrics.HTTPInflightRequests.Dec() //请求处理结束

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		// 路由模板要在 chi 匹配完成后才能拿到，所以放在 next 之后。
		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "UNMATCHED"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, routePattern, strconv.Itoa(sw.Status())).Inc()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(r.Method, routePattern).Observe(time.Since(start).Seconds())
	})
}
