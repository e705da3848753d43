package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"pix.local/internal/app/catalog/repo"
	"pix.local/internal/platform/config"
	"pix.local/internal/platform/db"
)

// 创建后台管理员账号。校验和 bcrypt 都走 UsersRepo.CreateAdmin，
// 和服务端用的是同一条路径，不在工具里单独拼 SQL。
func main() {
	if len(os.Args) != 3 {
		log.Fatal("usage: go run ./cmd/tools/hashpass <username> <password>")
	}
	username, password := os.Args[1], os.Args[2]

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	id, err := repo.NewUsersRepo(pool).CreateAdmin(ctx, username, password)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("admin %q created, id=%d\n", username, id)
}
