package httpmiddleware

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Code      int    `json:"Code"`      //错误码
	Message   string `json:"Message"`   //错误信息
	RequestId string `json:"RequestId"` //请求序号
}

// WriteError 统一的 JSON 错误响应（带上 request id，便于排查）。
func WriteError(w http.ResponseWriter, r *http.Request, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Code:      code,
		Message:   message,
		RequestId: r.Header.Get("X-Request-ID"), //没有就空
	})
}
