package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pix.local/internal/app/catalog"
	"pix.local/internal/app/catalog/cache"
	"pix.local/internal/app/catalog/stats"
	"pix.local/internal/app/catalog/views"
	"pix.local/internal/platform/httpmiddleware"
)

type ViewResponse struct {
	Counted bool `json:"counted"`
}

// NewViewHandler 是浏览计数的 HTTP 入口。
//
// 去重凭据是名为 viewed_<id> 的 cookie：这里只做“存在性”判断，不校验值。
// 计数器写入成功与否都回 200——前端不关心，也不该重试。
func NewViewHandler(recorder *views.Recorder, known *cache.BloomFilter, collector stats.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := catalog.ValidateImageID(id); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		// 布隆过滤器说不存在就一定不存在，不让乱扫的 id 进计数器
		if known != nil && !known.MightExist(id) {
			httpmiddleware.WriteError(w, r, http.StatusNotFound, "image not found")
			return
		}

		_, alreadyViewed := presentCookie(r, views.MarkerName(id))
		result, err := recorder.Record(r.Context(), id, alreadyViewed)
		if err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		if result.Marker != nil {
			http.SetCookie(w, &http.Cookie{
				Name:     result.Marker.Name,
				Value:    "1",
				MaxAge:   int(result.Marker.TTL / time.Second),
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		// 明细流水只记真正计入的浏览
		if !result.AlreadyCounted && collector != nil {
			collector.Collect(stats.ViewEvent{
				ImageID:   id,
				ViewedAt:  time.Now(),
				IP:        httpmiddleware.ClientIP(r),
				UserAgent: r.UserAgent(),
				Referer:   r.Referer(),
			})
		}

		writeJSON(w, http.StatusOK, ViewResponse{Counted: !result.AlreadyCounted})
	}
}

// presentCookie 返回 cookie 值和是否存在。过期 cookie 浏览器自己不会带上来。
func presentCookie(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}
