package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"pix.local/internal/app/catalog"
	"pix.local/internal/app/catalog/repo"
	"pix.local/internal/app/catalog/views"
	"pix.local/internal/platform/auth"
	"pix.local/internal/platform/httpmiddleware"
)

type LoginRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

func NewLoginHandler(usersRepo *repo.UsersRepo, ts auth.TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		dbctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		user, err := usersRepo.FindByUsername(dbctx, req.UserName)
		if err != nil {
			if errors.Is(err, repo.ErrUserNotFound) {
				httpmiddleware.WriteError(w, r, http.StatusUnauthorized, "invalid credentials")
				return
			}
			slog.Error("find user failed", "err", err)
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}

		token, err := ts.Sign(strconv.FormatInt(user.ID, 10), user.Role)
		if err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadGateway, "sign failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

type UploadResponse struct {
	ID           string   `json:"id"`
	UploadedExts []string `json:"uploaded_exts"`
	SkippedExts  []string `json:"skipped_exts,omitempty"`
}

// NewUploadHandler 处理新图上传（multipart）：
//   - preview / thumb 两个展示图进公开桶
//   - files 里的原始文件逐个进私有桶，扩展名不认识的跳过并警告
//
// 上传不是事务：对象写成功但某条 DB 插入失败时，桶里会留下孤儿对象，
// 由离线清理任务兜底，不在请求里回滚。
func NewUploadHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(64 << 20); err != nil { // 64MB 内存水位，超过落盘
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid multipart form")
			return
		}

		title := r.FormValue("title")
		if err := catalog.ValidateTitle(title); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		category := r.FormValue("category")
		if err := catalog.ValidateCategory(category); err != nil || category == "all" {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid category")
			return
		}
		keywords := catalog.NormalizeKeywords(strings.Split(r.FormValue("keywords"), ","))

		previews := r.MultipartForm.File["preview"]
		thumbs := r.MultipartForm.File["thumb"]
		if len(previews) == 0 || len(thumbs) == 0 {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "preview and thumb required")
			return
		}

		id := uuid.NewString()

		previewURL, err := d.putPublicAsset(r.Context(), "previews", id, previews[0])
		if err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadGateway, "object store unavailable")
			return
		}
		thumbURL, err := d.putPublicAsset(r.Context(), "thumbs", id, thumbs[0])
		if err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadGateway, "object store unavailable")
			return
		}

		if _, err := d.Images.Insert(r.Context(), &repo.Image{
			ID:         id,
			Title:      strings.TrimSpace(title),
			Category:   category,
			Keywords:   keywords,
			PreviewURL: previewURL,
			ThumbURL:   thumbURL,
		}); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if d.Known != nil {
			d.Known.Add(id)
		}

		var uploaded, skipped []string
		for _, fh := range r.MultipartForm.File["files"] {
			ext, err := d.putOriginal(r.Context(), id, fh)
			if err != nil {
				if errors.Is(err, repo.ErrUnknownFileType) {
					slog.Warn("unknown file type skipped", "image_id", id, "filename", fh.Filename)
					skipped = append(skipped, strings.TrimPrefix(path.Ext(fh.Filename), "."))
					continue
				}
				httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
				return
			}
			uploaded = append(uploaded, ext)
		}

		writeJSON(w, http.StatusCreated, UploadResponse{ID: id, UploadedExts: uploaded, SkippedExts: skipped})
	}
}

// putPublicAsset 把展示图写进公开桶，返回可直接访问的 URL。
func (d Deps) putPublicAsset(ctx context.Context, kind, id string, fh *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fh.Filename), "."))
	if ext == "" {
		ext = "jpg"
	}
	key := kind + "/" + id + "." + ext

	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if err := d.Store.Put(ctx, d.PublicBucket, key, f, fh.Size, contentType); err != nil {
		slog.Error("public asset upload failed", "key", key, "err", err)
		return "", err
	}
	return d.PublicAssetBase + "/" + key, nil
}

// putOriginal 校验扩展名、写私有桶、落 stock_files 一条记录。
func (d Deps) putOriginal(ctx context.Context, id string, fh *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fh.Filename), "."))
	ft, err := d.Files.FindFileTypeByExtension(ctx, ext)
	if err != nil {
		return "", err
	}

	key := "originals/" + id + "/" + id + "." + ft.Extension
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := d.Store.Put(ctx, d.PrivateBucket, key, f, fh.Size, ft.MimeType); err != nil {
		slog.Error("original upload failed", "key", key, "err", err)
		return "", err
	}

	if err := d.Files.Insert(ctx, repo.StockFile{
		StockID:    id,
		FileTypeID: ft.ID,
		ObjectKey:  key,
		FileSizeMB: float64(fh.Size) / (1 << 20),
	}); err != nil {
		return "", err
	}
	return ft.Extension, nil
}

type AdminPhotoResponse struct {
	Image *repo.Image      `json:"image"`
	Files []repo.StockFile `json:"files"`
}

func NewAdminGetPhotoHandler(images *repo.ImagesRepo, files *repo.FilesRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := catalog.ValidateImageID(id); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		img, err := images.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, repo.ErrImageNotFound) {
				httpmiddleware.WriteError(w, r, http.StatusNotFound, err.Error())
				return
			}
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		fs, err := files.ListByStock(r.Context(), id)
		if err != nil {
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if fs == nil {
			fs = []repo.StockFile{}
		}
		writeJSON(w, http.StatusOK, AdminPhotoResponse{Image: img, Files: fs})
	}
}

type PatchPhotoRequest struct {
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
}

func NewPatchPhotoHandler(images *repo.ImagesRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := catalog.ValidateImageID(id); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		var req PatchPhotoRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := catalog.ValidateTitle(req.Title); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		err := images.UpdateMeta(r.Context(), id, strings.TrimSpace(req.Title), catalog.NormalizeKeywords(req.Keywords))
		if err != nil {
			if errors.Is(err, repo.ErrImageNotFound) {
				httpmiddleware.WriteError(w, r, http.StatusNotFound, err.Error())
				return
			}
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// NewAddFileHandler 给已有图片补一个源文件。
func NewAddFileHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := catalog.ValidateImageID(id); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if _, err := d.Images.GetByID(r.Context(), id); err != nil {
			if errors.Is(err, repo.ErrImageNotFound) {
				httpmiddleware.WriteError(w, r, http.StatusNotFound, err.Error())
				return
			}
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}

		if err := r.ParseMultipartForm(64 << 20); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid multipart form")
			return
		}
		fhs := r.MultipartForm.File["file"]
		if len(fhs) == 0 {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "file required")
			return
		}

		ext, err := d.putOriginal(r.Context(), id, fhs[0])
		if err != nil {
			if errors.Is(err, repo.ErrUnknownFileType) {
				httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id, "extension": ext})
	}
}

// NewDeleteFileHandler 删一个源文件：先删 DB 记录拿回对象 key，再删对象。
// 对象删除失败只记日志——DB 记录已经没了，对象成为孤儿，由清理任务兜底。
func NewDeleteFileHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := catalog.ValidateImageID(id); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		typeID, err := strconv.Atoi(r.URL.Query().Get("type_id"))
		if err != nil || typeID < 1 {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid type_id")
			return
		}

		objectKey, err := d.Files.Delete(r.Context(), id, typeID)
		if err != nil {
			if errors.Is(err, repo.ErrFileNotFound) {
				httpmiddleware.WriteError(w, r, http.StatusNotFound, err.Error())
				return
			}
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if err := d.Store.Delete(r.Context(), d.PrivateBucket, objectKey); err != nil {
			slog.Error("orphan object left behind", "key", objectKey, "err", err)
		}
		w.WriteHeader(http.StatusOK)
	}
}

type BatchDeleteRequest struct {
	IDs []string `json:"ids"`
}

// NewBatchDeleteHandler 批量删图：私有桶原件、公开桶展示图、DB 记录。
// 对象删除失败同样只记日志不中断。
func NewBatchDeleteHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BatchDeleteRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req.IDs) == 0 || len(req.IDs) > 100 {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "ids must be 1-100")
			return
		}
		for _, id := range req.IDs {
			if err := catalog.ValidateImageID(id); err != nil {
				httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
				return
			}
		}

		keys, err := d.Files.ObjectKeysForImages(r.Context(), req.IDs)
		if err != nil {
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		for _, key := range keys {
			if err := d.Store.Delete(r.Context(), d.PrivateBucket, key); err != nil {
				slog.Error("orphan object left behind", "key", key, "err", err)
			}
		}
		// 公开桶的展示图 key 从 URL 反推
		for _, id := range req.IDs {
			img, err := d.Images.GetByID(r.Context(), id)
			if err != nil {
				continue // 已经不存在就跳过
			}
			for _, u := range []string{img.PreviewURL, img.ThumbURL} {
				key := strings.TrimPrefix(u, d.PublicAssetBase+"/")
				if key == u || key == "" {
					continue // URL 不在公开域名下，别乱删
				}
				if err := d.Store.Delete(r.Context(), d.PublicBucket, key); err != nil {
					slog.Error("orphan object left behind", "key", key, "err", err)
				}
			}
		}

		if err := d.Images.DeleteByIDs(r.Context(), req.IDs); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.IDs)})
	}
}

// NewLogoutHandler 登出。令牌是无状态 JWT，真正的"登出"是客户端丢弃令牌，
// 服务端这里只给前端一个统一的调用点，永远 200。
func NewLogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// NewFlushHandler 手动触发一次计数聚合（平时由定时器驱动）。
func NewFlushHandler(aggregator *views.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := aggregator.Run(r.Context())
		if err != nil {
			slog.Error("manual flush failed", "err", err)
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "flush failed")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
