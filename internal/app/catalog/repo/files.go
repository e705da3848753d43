package repo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrFileNotFound = errors.New("stock file not found")
var ErrUnknownFileType = errors.New("unknown file type")

// FileType 是一种可下载的源文件格式（jpg / png / psd / ai ...）。
type FileType struct {
	ID        int    `json:"id"`
	Extension string `json:"extension"`
	MimeType  string `json:"mime_type"`
}

// StockFile 是某张图在私有桶里的一个源文件。
type StockFile struct {
	StockID    string  `json:"stock_id"`
	FileTypeID int     `json:"file_type_id"`
	Extension  string  `json:"extension"`
	MimeType   string  `json:"mime_type"`
	ObjectKey  string  `json:"-"` // 桶内 key 不外泄，下载走预签名
	FileSizeMB float64 `json:"file_size_mb"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	DPI        int     `json:"dpi"`
}

type FilesRepo struct {
	db *pgxpool.Pool
}

func NewFilesRepo(db *pgxpool.Pool) *FilesRepo {
	return &FilesRepo{db: db}
}

// ListFileTypes 启动后基本不变，调用方可以自行缓存。
func (r *FilesRepo) ListFileTypes(ctx context.Context) ([]FileType, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.db.Query(dbctx, `SELECT id, extension, mime_type FROM file_types ORDER BY id`)
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	defer rows.Close()

	var types []FileType
	for rows.Next() {
		var t FileType
		if err := rows.Scan(&t.ID, &t.Extension, &t.MimeType); err != nil {
			slog.Error(err.Error())
			return nil, err
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	return types, nil
}

func (r *FilesRepo) FindFileTypeByExtension(ctx context.Context, extension string) (FileType, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var t FileType
	err := r.db.QueryRow(dbctx,
		`SELECT id, extension, mime_type FROM file_types WHERE extension=$1`, extension).
		Scan(&t.ID, &t.Extension, &t.MimeType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FileType{}, ErrUnknownFileType
		}
		slog.Error(err.Error())
		return FileType{}, err
	}
	return t, nil
}

// FindDownload 查下载用的源文件（含桶内 key 和 MIME），发预签名 URL 前的唯一一次落库查询。
func (r *FilesRepo) FindDownload(ctx context.Context, stockID string, fileTypeID int) (StockFile, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var f StockFile
	err := r.db.QueryRow(dbctx,
		`SELECT sf.stock_id, sf.file_type_id, ft.extension, ft.mime_type,
		        sf.object_key, sf.file_size_mb, sf.width, sf.height, sf.dpi
		 FROM stock_files sf JOIN file_types ft ON ft.id = sf.file_type_id
		 WHERE sf.stock_id=$1 AND sf.file_type_id=$2`, stockID, fileTypeID).
		Scan(&f.StockID, &f.FileTypeID, &f.Extension, &f.MimeType,
			&f.ObjectKey, &f.FileSizeMB, &f.Width, &f.Height, &f.DPI)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockFile{}, ErrFileNotFound
		}
		slog.Error(err.Error())
		return StockFile{}, err
	}
	return f, nil
}

// ListByStock 管理端编辑页展示某张图已有的源文件。
func (r *FilesRepo) ListByStock(ctx context.Context, stockID string) ([]StockFile, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.db.Query(dbctx,
		`SELECT sf.stock_id, sf.file_type_id, ft.extension, ft.mime_type,
		        sf.object_key, sf.file_size_mb, sf.width, sf.height, sf.dpi
		 FROM stock_files sf JOIN file_types ft ON ft.id = sf.file_type_id
		 WHERE sf.stock_id=$1 ORDER BY sf.file_type_id`, stockID)
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	defer rows.Close()

	var files []StockFile
	for rows.Next() {
		var f StockFile
		if err := rows.Scan(&f.StockID, &f.FileTypeID, &f.Extension, &f.MimeType,
			&f.ObjectKey, &f.FileSizeMB, &f.Width, &f.Height, &f.DPI); err != nil {
			slog.Error(err.Error())
			return nil, err
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	return files, nil
}

func (r *FilesRepo) Insert(ctx context.Context, f StockFile) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.db.Exec(dbctx,
		`INSERT INTO stock_files (stock_id, file_type_id, object_key, file_size_mb, width, height, dpi)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (stock_id, file_type_id) DO UPDATE
		 SET object_key=EXCLUDED.object_key, file_size_mb=EXCLUDED.file_size_mb,
		     width=EXCLUDED.width, height=EXCLUDED.height, dpi=EXCLUDED.dpi`,
		f.StockID, f.FileTypeID, f.ObjectKey, f.FileSizeMB, f.Width, f.Height, f.DPI)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	return nil
}

// Delete 删一条源文件记录，返回它的桶内 key，调用方负责删对象。
func (r *FilesRepo) Delete(ctx context.Context, stockID string, fileTypeID int) (string, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var objectKey string
	err := r.db.QueryRow(dbctx,
		`DELETE FROM stock_files WHERE stock_id=$1 AND file_type_id=$2 RETURNING object_key`,
		stockID, fileTypeID).Scan(&objectKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrFileNotFound
		}
		slog.Error(err.Error())
		return "", err
	}
	return objectKey, nil
}

// ObjectKeysForImages 批量删除图片前先拿到全部桶内 key。
func (r *FilesRepo) ObjectKeysForImages(ctx context.Context, stockIDs []string) ([]string, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.db.Query(dbctx,
		`SELECT object_key FROM stock_files WHERE stock_id = ANY($1)`, stockIDs)
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			slog.Error(err.Error())
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	return keys, nil
}
