package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"pix.local/internal/platform/httpmiddleware"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON 解析请求体，失败时已写入 400 响应
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// parsePage 解析分页参数，缺省 page=1 limit=24，limit 上限 100。
// 参数非法时已写入 400 响应。
func parsePage(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	page, limit := 1, 24
	if p := r.URL.Query().Get("p"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid page")
			return 0, 0, false
		}
		page = n
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > 100 {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid limit")
			return 0, 0, false
		}
		limit = n
	}
	return page, limit, true
}
