package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"social-graph-service/backend/config"
	"social-graph-service/backend/internal/badgerdb"
	"social-graph-service/backend/internal/cache"
	"social-graph-service/backend/internal/handler"
	"social-graph-service/backend/internal/httpapi/middleware"
	"social-graph-service/backend/internal/journal"
	"social-graph-service/backend/internal/mysqldb"
	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/social"
	"social-graph-service/backend/internal/telemetry"
)

func openStore(ctx context.Context, cfg *config.Config, reg *schema.Registry, logger *slog.Logger) (repo.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "mysql":
		db, err := mysqldb.Open(cfg.Mysql.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		if cfg.Mysql.Migrate {
			if err := mysqldb.Migrate(ctx, db, reg.Tables()); err != nil {
				return nil, nil, fmt.Errorf("migrate mysql: %w", err)
			}
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return mysqldb.NewMySQLStore(db, logger), closeFn, nil
	default:
		bcfg := badgerdb.DefaultConfig(cfg.Badger.Path)
		bcfg.InMemory = cfg.Badger.InMemory
		bcfg.SyncWrites = cfg.Badger.SyncWrites
		bcfg.GCInterval = cfg.Badger.GCInterval
		bcfg.Logger = logger
		db, err := badgerdb.Open(bcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger: %w", err)
		}
		return badgerdb.NewStore(db, logger), func() { db.Close() }, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	reg, err := cfg.Registry()
	if err != nil {
		log.Fatalf("build table registry failed: %v", err)
	}
	modes, err := cfg.Modes()
	if err != nil {
		log.Fatalf("parse consistency modes failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, reg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeStore()

	// 读穿缓存：写后按 key 失效
	if cfg.Redis.Enabled {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("ping redis failed: %v", err)
		}
		defer rdb.Close()
		store = cache.NewRedisStore(rdb, store, logger)
	}

	var exec repo.Executor = store

	// 提交日志：本地队列 + worker 重试发送
	if cfg.Kafka.Enabled {
		kafkaCfg := sarama.NewConfig()
		// SyncProducer 必须开启 Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			log.Fatalf("connect kafka failed: %v", err)
		}
		defer producer.Close()

		dispatcher := journal.NewKafkaDispatcher(
			producer,
			cfg.Kafka.Topic,
			journal.NewSemaphoreControl(cfg.Kafka.MaxInFlight),
			journal.KafkaDispatcherOptions{
				QueueSize:   cfg.Kafka.QueueSize,
				Workers:     cfg.Kafka.Workers,
				MaxRetry:    cfg.Kafka.MaxRetry,
				BaseBackoff: 50 * time.Millisecond,
				MaxBackoff:  1 * time.Second,

				AcquireTimeout: cfg.Kafka.AcquireTimeout,
			},
			logger,
		)
		// defer 逆序：先 Close 排空队列，再关 producer
		defer dispatcher.Close()
		exec = journal.NewExecutor(exec, dispatcher, cfg.Kafka.EnqueueTimeout, logger)
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	exec = telemetry.NewExecutor(exec, metrics)

	svc := social.New(store, exec, reg, modes, logger, social.WithMetrics(metrics))
	h := handler.NewSocialHandler(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// 经网关访问时网关已经加了 CORS；直连调试时设置 SOCIAL_ENABLE_CORS=1
	if os.Getenv("SOCIAL_ENABLE_CORS") == "1" {
		router.Use(cors.New(cors.Config{
			AllowOriginFunc:  func(origin string) bool { return true },
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(router, middleware.AuthMiddleware(cfg.JWTSecret(middleware.Secret)))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Running.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("social graph server listening", "addr", srv.Addr, "storage", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
}
