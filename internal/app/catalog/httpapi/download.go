package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"pix.local/internal/app/catalog"
	"pix.local/internal/app/catalog/repo"
	"pix.local/internal/platform/httpmiddleware"
	"pix.local/internal/platform/objstore"
)

type DownloadResponse struct {
	URL       string  `json:"url"`
	ExpiresIn int64   `json:"expires_in"` // 秒
	FileName  string  `json:"file_name"`
	SizeMB    float64 `json:"size_mb"`
}

// NewDownloadHandler 签发私有桶的预签名下载 URL。
// 服务端不代理文件流量，客户端拿 URL 直连对象存储。
func NewDownloadHandler(files *repo.FilesRepo, store *objstore.Store, bucket string, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if err := catalog.ValidateImageID(id); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		typeID, err := strconv.Atoi(r.URL.Query().Get("type_id"))
		if err != nil || typeID < 1 {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid type_id")
			return
		}

		f, err := files.FindDownload(r.Context(), id, typeID)
		if err != nil {
			if errors.Is(err, repo.ErrFileNotFound) {
				httpmiddleware.WriteError(w, r, http.StatusNotFound, err.Error())
				return
			}
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}

		// 签名之前确认对象还在：DB 记录和桶内容可能因为清理任务短暂不一致，
		// 发一个注定 404 的签名 URL 出去只会让前端更难排查。
		if _, err := store.Stat(r.Context(), bucket, f.ObjectKey); err != nil {
			if errors.Is(err, objstore.ErrNotFound) {
				slog.Error("stock file record without object", "key", f.ObjectKey)
				httpmiddleware.WriteError(w, r, http.StatusNotFound, "file unavailable")
				return
			}
			httpmiddleware.WriteError(w, r, http.StatusBadGateway, "object store unavailable")
			return
		}

		filename := f.StockID + "." + f.Extension
		url, err := store.PresignGet(r.Context(), bucket, f.ObjectKey, filename, f.MimeType, ttl)
		if err != nil {
			slog.Error("presign failed", "key", f.ObjectKey, "err", err)
			httpmiddleware.WriteError(w, r, http.StatusBadGateway, "object store unavailable")
			return
		}

		writeJSON(w, http.StatusOK, DownloadResponse{
			URL:       url,
			ExpiresIn: int64(ttl / time.Second),
			FileName:  filename,
			SizeMB:    f.FileSizeMB,
		})
	}
}

// NewFileTypesHandler 返回支持的源文件格式清单（下载页/上传页共用）。
func NewFileTypesHandler(files *repo.FilesRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := files.ListFileTypes(r.Context())
		if err != nil {
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if types == nil {
			types = []repo.FileType{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"file_types": types})
	}
}
