package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	catalogcache "pix.local/internal/app/catalog/cache"
	"pix.local/internal/app/catalog/httpapi"
	"pix.local/internal/app/catalog/repo"
	"pix.local/internal/app/catalog/stats"
	"pix.local/internal/app/catalog/views"
	"pix.local/internal/platform/auth"
	platformcache "pix.local/internal/platform/cache"
	"pix.local/internal/platform/config"
	"pix.local/internal/platform/db"
	"pix.local/internal/platform/httpmiddleware"
	"pix.local/internal/platform/httpserver"
	"pix.local/internal/platform/metrics"
	"pix.local/internal/platform/objstore"
	"pix.local/internal/platform/ratelimit"
	"pix.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	slog.SetDefault(slog.New(h))
	//DB
	dbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	dbPool, errDB := db.New(dbCtx, cfg.DBDSN)
	if errDB != nil {
		log.Fatal(errDB)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(dbCtx); err != nil {
		log.Fatal(err)
	}
	slog.Info("数据库连接成功")

	usersRepo := repo.NewUsersRepo(dbPool)
	filesRepo := repo.NewFilesRepo(dbPool)

	//Redis
	redisClient, errRedis := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if errRedis != nil {
		log.Fatal(errRedis)
	}
	defer redisClient.Close()
	//限流器
	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewLimiter(redisClient)
	} else {
		slog.Warn("RateLimit disabled by config", "RATELIMIT_ENABLED", false)
	}
	//图片元数据缓存
	localCache, errLocal := catalogcache.NewLocalCache(50000, 1<<26) // 5万条目，64MB
	if errLocal != nil {
		log.Fatal(errLocal)
	}
	photoCache := catalogcache.NewPhotoCache(redisClient, localCache)
	defer photoCache.Close()

	imagesRepo := repo.NewImagesRepo(dbPool, photoCache)

	//布隆过滤器：预期 100 万张图，1% 误判率；启动时灌一遍已有 id
	knownImages := catalogcache.NewBloomFilter(1_000_000, 0.01)
	if ids, err := imagesRepo.AllIDs(dbCtx); err != nil {
		slog.Warn("bloom filter preload failed, view endpoint runs unguarded", "err", err)
		knownImages = nil
	} else {
		for _, id := range ids {
			knownImages.Add(id)
		}
		slog.Info("bloom filter loaded", "images", len(ids), "estimated", knownImages.Count())
	}

	//对象存储（R2/S3 兼容）
	objCtx, objCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer objCancel()
	objStore, errObj := objstore.New(objCtx, objstore.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if errObj != nil {
		log.Fatal(errObj)
	}

	//浏览计数管道：Redis 计数器 + 聚合器
	counterStore := views.NewRedisCounterStore(redisClient)
	recorder := views.NewRecorder(counterStore, cfg.ViewDedupTTL)
	aggregator := views.NewAggregator(counterStore, imagesRepo)

	//初始化统计收集器（根据配置选择 Channel 或 Kafka）
	var collector stats.Collector
	var kafkaConsumer *stats.KafkaConsumer
	var channelConsumer *stats.Consumer
	if cfg.KafkaEnabled {
		slog.Info("使用 Kafka 收集浏览明细", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer = stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, dbPool)
	} else {
		slog.Info("使用 Channel 收集浏览明细")
		channelCollector := stats.NewChannelCollector(10000)
		collector = channelCollector
		channelConsumer = stats.NewConsumer(dbPool, channelCollector)
	}

	// JWT
	ts, jwtErr := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if jwtErr != nil {
		log.Fatal(jwtErr)
	}

	metrics.Init()

	var shutdown func(context.Context) error
	if cfg.TracingEnabled {
		shutdown = trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName)
		if shutdown == nil {
			slog.Error("Trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error(err.Error())
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer, httpmiddleware.ReqID, httpmiddleware.AccessLog, httpmiddleware.Metrics, httpmiddleware.TraceName)

	r.Route("/api/v1", func(api chi.Router) {
		httpapi.RegisterAPIRoutes(api, httpapi.Deps{
			Images:     imagesRepo,
			Files:      filesRepo,
			Users:      usersRepo,
			Recorder:   recorder,
			Aggregator: aggregator,
			Collector:  collector,
			Known:      knownImages,
			Store:      objStore,
			Tokens:     ts,
			Limiter:    limiter,

			PrivateBucket:   cfg.S3PrivateBucket,
			PublicBucket:    cfg.S3PublicBucket,
			PublicAssetBase: cfg.PublicAssetBase,
			DownloadTTL:     cfg.DownloadURLTTL,
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	// 数据库连接状态检测
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		dbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := dbPool.Ping(dbCtx); err != nil {
			w.WriteHeader(500)
			w.Write([]byte("DB Ping Err"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("DB ready"))
	})

	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	adminSrv := &http.Server{
		Addr:              cfg.AdminAddr, // 推荐：127.0.0.1:6060
		Handler:           adminMux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errch := make(chan error, 2)

	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(publicSrv, cfg.ShutdownTimeout, stopCtx)
	}()
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(adminSrv, cfg.ShutdownTimeout, stopCtx)
	}()

	// 定时聚合浏览计数
	go func() {
		ticker := time.NewTicker(cfg.ViewFlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCtx.Done():
				// 退出前最后排空一次，少丢一个周期的增量
				ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				if _, err := aggregator.Run(ctx); err != nil {
					slog.Error("final view flush failed", "err", err)
				}
				cancel()
				return
			case <-ticker.C:
				if _, err := aggregator.Run(stopCtx); err != nil {
					slog.Error("view flush failed", "err", err)
				}
			}
		}
	}()

	// 启动 Kafka consumer（如果启用）
	if kafkaConsumer != nil {
		go kafkaConsumer.Run(stopCtx)
		defer kafkaConsumer.Close()
	}
	// 启动 Channel consumer（如果启用）
	if channelConsumer != nil {
		go channelConsumer.Run(stopCtx)
	}
	defer collector.Close()

	err := <-errch
	if err != nil {
		stop()
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
		log.Fatal(err)
	}

	stop()
	<-errch
}
