package repo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pix.local/internal/app/catalog/cache"
)

var ErrImageNotFound = errors.New("image not found")

// Image 是一张图的完整元数据（详情页用）。
type Image struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	Keywords   []string  `json:"keywords"`
	PreviewURL string    `json:"preview_url"`
	ThumbURL   string    `json:"thumb_url"`
	Views      int64     `json:"views"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ImageSummary 是列表/搜索结果里的精简条目。
type ImageSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	ThumbURL   string    `json:"thumb_url"`
	PreviewURL string    `json:"preview_url"`
	Views      int64     `json:"views"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type SitemapEntry struct {
	ID         string    `json:"id"`
	UploadedAt time.Time `json:"uploaded_at"`
	PreviewURL string    `json:"preview_url"`
}

type ImagesRepo struct {
	db    *pgxpool.Pool
	cache *cache.PhotoCache
}

func NewImagesRepo(db *pgxpool.Pool, cache *cache.PhotoCache) *ImagesRepo {
	return &ImagesRepo{db: db, cache: cache}
}

// GetByID 查单张图的详情。详情页是读热点，先走两级缓存。
func (r *ImagesRepo) GetByID(ctx context.Context, id string) (*Image, error) {
	if r.cache != nil {
		payload, negative, _ := r.cache.Get(ctx, id)
		if negative {
			return nil, ErrImageNotFound //命中负缓存
		}
		if payload != "" {
			var img Image
			if err := json.Unmarshal([]byte(payload), &img); err == nil {
				return &img, nil
			}
			// 缓存里的坏数据当未命中处理，回源覆盖
		}
	}

	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	var img Image
	err := r.db.QueryRow(dbctx,
		`SELECT id, title, category, keywords, preview_url, thumb_url, views, uploaded_at
		 FROM images WHERE id=$1`, id).
		Scan(&img.ID, &img.Title, &img.Category, &img.Keywords, &img.PreviewURL, &img.ThumbURL, &img.Views, &img.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if r.cache != nil {
				r.cache.SetNotFound(ctx, id)
			}
			return nil, ErrImageNotFound
		}
		slog.Error(err.Error())
		return nil, err
	}

	if r.cache != nil {
		if payload, merr := json.Marshal(&img); merr == nil {
			r.cache.Set(ctx, id, string(payload))
		}
	}
	return &img, nil
}

// List 按上传时间倒序分页；category 为空表示不过滤。
func (r *ImagesRepo) List(ctx context.Context, page, limit int, category string) ([]ImageSummary, int64, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	offset := (page - 1) * limit

	var total int64
	var rows pgx.Rows
	var err error
	if category != "" {
		if err := r.db.QueryRow(dbctx, `SELECT count(*) FROM images WHERE category=$1`, category).Scan(&total); err != nil {
			slog.Error(err.Error())
			return nil, 0, err
		}
		rows, err = r.db.Query(dbctx,
			`SELECT id, title, category, thumb_url, preview_url, views, uploaded_at
			 FROM images WHERE category=$1 ORDER BY uploaded_at DESC LIMIT $2 OFFSET $3`,
			category, limit, offset)
	} else {
		if err := r.db.QueryRow(dbctx, `SELECT count(*) FROM images`).Scan(&total); err != nil {
			slog.Error(err.Error())
			return nil, 0, err
		}
		rows, err = r.db.Query(dbctx,
			`SELECT id, title, category, thumb_url, preview_url, views, uploaded_at
			 FROM images ORDER BY uploaded_at DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		slog.Error(err.Error())
		return nil, 0, err
	}
	defer rows.Close()

	items, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Search 全文检索标题+关键词，可叠加 category 过滤。
// 用 websearch_to_tsquery：对用户输入宽容（空格=AND、引号=短语），不会因语法报错。
func (r *ImagesRepo) Search(ctx context.Context, query, category string, page, limit int) ([]ImageSummary, int64, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	offset := (page - 1) * limit

	where := `fts @@ websearch_to_tsquery('simple', $1)`
	args := []any{query}
	if category != "" && category != "all" {
		where += ` AND category=$2`
		args = append(args, category)
	}

	var total int64
	if err := r.db.QueryRow(dbctx, `SELECT count(*) FROM images WHERE `+where, args...).Scan(&total); err != nil {
		slog.Error(err.Error())
		return nil, 0, err
	}

	args = append(args, limit, offset)
	n := len(args)
	rows, err := r.db.Query(dbctx,
		`SELECT id, title, category, thumb_url, preview_url, views, uploaded_at
		 FROM images WHERE `+where+`
		 ORDER BY ts_rank(fts, websearch_to_tsquery('simple', $1)) DESC, uploaded_at DESC
		 LIMIT $`+strconv.Itoa(n-1)+` OFFSET $`+strconv.Itoa(n), args...)
	if err != nil {
		slog.Error(err.Error())
		return nil, 0, err
	}
	defer rows.Close()

	items, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListByCategory 不带搜索词、只按分类过滤的搜索入口。
func (r *ImagesRepo) ListByCategory(ctx context.Context, category string, page, limit int) ([]ImageSummary, int64, error) {
	return r.List(ctx, page, limit, category)
}

// Similar 用目标图的标题+关键词拼一个查询，找相近的图（排除自己）。
func (r *ImagesRepo) Similar(ctx context.Context, id string, limit int) (*Image, []ImageSummary, error) {
	target, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	// plainto_tsquery 把词全部 OR 起来会放大噪音，这里用 OR 连接手动降噪更直观；
	// 排序靠 ts_rank，所以就算匹配很宽也是最像的在前。
	terms := target.Title
	for _, kw := range target.Keywords {
		terms += " or " + kw
	}

	rows, err := r.db.Query(dbctx,
		`SELECT id, title, category, thumb_url, preview_url, views, uploaded_at
		 FROM images
		 WHERE id <> $1 AND fts @@ websearch_to_tsquery('simple', $2)
		 ORDER BY ts_rank(fts, websearch_to_tsquery('simple', $2)) DESC
		 LIMIT $3`, id, terms, limit)
	if err != nil {
		slog.Error(err.Error())
		return nil, nil, err
	}
	defer rows.Close()

	items, err := scanSummaries(rows)
	if err != nil {
		return nil, nil, err
	}
	return target, items, nil
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// Categories 返回去重后的分类列表和各自的图片数。
func (r *ImagesRepo) Categories(ctx context.Context) ([]CategoryCount, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.db.Query(dbctx,
		`SELECT category, count(*) FROM images GROUP BY category ORDER BY category`)
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	defer rows.Close()

	var categories []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			slog.Error(err.Error())
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	return categories, nil
}

// Sitemap 给前端生成 sitemap 用的全量清单。
func (r *ImagesRepo) Sitemap(ctx context.Context) ([]SitemapEntry, error) {
	dbctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(dbctx,
		`SELECT id, uploaded_at, preview_url FROM images ORDER BY uploaded_at DESC`)
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	defer rows.Close()

	var entries []SitemapEntry
	for rows.Next() {
		var e SitemapEntry
		if err := rows.Scan(&e.ID, &e.UploadedAt, &e.PreviewURL); err != nil {
			slog.Error(err.Error())
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	return entries, nil
}

// IncrementViewCount 把聚合好的浏览增量原子地加到持久计数上。
// 必须是相对自增（views = views + n）：绝不能读出来再写绝对值，
// 并发写同一行会互相覆盖。
func (r *ImagesRepo) IncrementViewCount(ctx context.Context, id string, amount int64) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.db.Exec(dbctx, `UPDATE images SET views = views + $2 WHERE id=$1`, id, amount)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrImageNotFound
	}

	// 详情缓存里存着旧的 views，直接失效，下次读回源
	if r.cache != nil {
		r.cache.Delete(ctx, id)
	}
	return nil
}

// Insert 新建一条图片记录，返回生成的 id。
func (r *ImagesRepo) Insert(ctx context.Context, img *Image) (string, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id string
	err := r.db.QueryRow(dbctx,
		`INSERT INTO images (id, title, category, keywords, preview_url, thumb_url)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		img.ID, img.Title, img.Category, img.Keywords, img.PreviewURL, img.ThumbURL).
		Scan(&id)
	if err != nil {
		slog.Error(err.Error())
		return "", err
	}
	return id, nil
}

// UpdateMeta 修改标题/关键词（管理端编辑）。
func (r *ImagesRepo) UpdateMeta(ctx context.Context, id, title string, keywords []string) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.db.Exec(dbctx,
		`UPDATE images SET title=$2, keywords=$3, uploaded_at=now() WHERE id=$1`,
		id, title, keywords)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	if r.cache != nil {
		r.cache.Delete(ctx, id)
	}
	return nil
}

// DeleteByIDs 批量删除图片记录（关联的 stock_files 由外键级联删除）。
func (r *ImagesRepo) DeleteByIDs(ctx context.Context, ids []string) error {
	dbctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.db.Exec(dbctx, `DELETE FROM images WHERE id = ANY($1)`, ids); err != nil {
		slog.Error(err.Error())
		return err
	}
	for _, id := range ids {
		if r.cache != nil {
			r.cache.Delete(ctx, id)
		}
	}
	return nil
}

// AllIDs 启动时加载全量 id 喂给布隆过滤器。
func (r *ImagesRepo) AllIDs(ctx context.Context) ([]string, error) {
	dbctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.db.Query(dbctx, `SELECT id FROM images`)
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error(err.Error())
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	return ids, nil
}

func scanSummaries(rows pgx.Rows) ([]ImageSummary, error) {
	var items []ImageSummary
	for rows.Next() {
		var item ImageSummary
		if err := rows.Scan(&item.ID, &item.Title, &item.Category, &item.ThumbURL, &item.PreviewURL, &item.Views, &item.UploadedAt); err != nil {
			slog.Error(err.Error())
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	return items, nil
}
