package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"time"

	"pix.local/internal/platform/config"
	"pix.local/internal/platform/db"
	"pix.local/internal/platform/migrate"
)

// 按文件名顺序执行 migrations/ 下的 SQL，已执行过的跳过。
func main() {
	dir := flag.String("dir", "", "migrations directory (default: ./migrations)")
	flag.Parse()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	res, err := migrate.Up(ctx, pool, migrate.Options{Dir: *dir})
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("migrations done", "dir", res.Dir,
		"applied", len(res.AppliedFiles), "skipped", len(res.SkippedFiles))
	for _, f := range res.AppliedFiles {
		slog.Info("applied", "file", f)
	}
}
