package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"

	"pix.local/internal/app/catalog/cache"
	"pix.local/internal/app/catalog/repo"
	"pix.local/internal/app/catalog/stats"
	"pix.local/internal/app/catalog/views"
	"pix.local/internal/platform/auth"
	"pix.local/internal/platform/httpmiddleware"
	"pix.local/internal/platform/objstore"
	"pix.local/internal/platform/ratelimit"
)

// Deps 是挂载路由需要的全部依赖。
//
// 约定：本包只做“传输层（transport）”工作；领域逻辑放在 internal/app/catalog。
//
// 设计原因：
// - cmd/api 只负责"组装"和"挂载"，业务模块自己提供 RegisterAPIRoutes，避免路由散落在 main.go
// - handler 只做"翻译"：HTTP <-> 领域（参数校验、错误映射、响应格式），避免堆业务
type Deps struct {
	Images     *repo.ImagesRepo
	Files      *repo.FilesRepo
	Users      *repo.UsersRepo
	Recorder   *views.Recorder
	Aggregator *views.Aggregator
	Collector  stats.Collector
	Known      *cache.BloomFilter
	Store      *objstore.Store
	Tokens     auth.TokenService
	Limiter    *ratelimit.Limiter

	PrivateBucket   string
	PublicBucket    string
	PublicAssetBase string
	DownloadTTL     time.Duration
}

// RegisterAPIRoutes 在给定的路由分组下挂载图库 API（例如 /api/v1）。
func RegisterAPIRoutes(api chi.Router, d Deps) {
	//无需登录的路由；带了有效 token 的话顺便解析出身份（访问日志/追踪用）
	api.Use(httpmiddleware.AuthOptional(d.Tokens))

	// 公开目录
	api.With(httpmiddleware.RateLimit(d.Limiter, "list", 120, time.Minute)).
		Get("/photos", NewListPhotosHandler(d.Images))
	api.Get("/photos/{id}", NewGetPhotoHandler(d.Images))
	api.Get("/photos/{id}/similar", NewSimilarHandler(d.Images))
	//搜索 30次/分钟
	api.With(httpmiddleware.RateLimit(d.Limiter, "search", 30, time.Minute)).
		Get("/search", NewSearchHandler(d.Images))
	api.Get("/categories", NewCategoriesHandler(d.Images))
	api.Get("/sitemap", NewSitemapHandler(d.Images))
	// 下载页/上传页都要展示支持的格式清单
	api.Get("/file-types", NewFileTypesHandler(d.Files))

	// 浏览计数 60次/分钟（去重主要靠 cookie，限流只挡脚本）
	api.With(httpmiddleware.RateLimit(d.Limiter, "view", 60, time.Minute)).
		Post("/photos/{id}/view", NewViewHandler(d.Recorder, d.Known, d.Collector))

	// 下载要登录 20次/分钟
	api.With(
		httpmiddleware.AuthRequired(d.Tokens),
		httpmiddleware.RateLimit(d.Limiter, "download", 20, time.Minute),
	).Post("/downloads", NewDownloadHandler(d.Files, d.Store, d.PrivateBucket, d.DownloadTTL))

	// 管理后台
	api.Route("/admin", func(admin chi.Router) {
		//登录 5次/分钟
		admin.With(httpmiddleware.RateLimit(d.Limiter, "login", 5, time.Minute)).
			Post("/login", NewLoginHandler(d.Users, d.Tokens))

		admin.Group(func(r chi.Router) {
			r.Use(httpmiddleware.AuthRequired(d.Tokens), httpmiddleware.RequireRole("admin"))
			r.Post("/logout", NewLogoutHandler())
			r.Post("/photos", NewUploadHandler(d))
			r.Get("/photos/{id}", NewAdminGetPhotoHandler(d.Images, d.Files))
			r.Patch("/photos/{id}", NewPatchPhotoHandler(d.Images))
			r.Post("/photos/{id}/files", NewAddFileHandler(d))
			r.Delete("/photos/{id}/files", NewDeleteFileHandler(d))
			r.Delete("/photos", NewBatchDeleteHandler(d))
			r.Post("/views/flush", NewFlushHandler(d.Aggregator))
		})
	})
}
