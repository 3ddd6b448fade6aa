package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quocanhngo/talkcore/internal/cache"
	"github.com/quocanhngo/talkcore/internal/config"
	"github.com/quocanhngo/talkcore/internal/handler"
	"github.com/quocanhngo/talkcore/internal/metrics"
	"github.com/quocanhngo/talkcore/internal/middleware"
	"github.com/quocanhngo/talkcore/internal/model"
	"github.com/quocanhngo/talkcore/internal/notify"
	"github.com/quocanhngo/talkcore/internal/repository"
	"github.com/quocanhngo/talkcore/internal/repository/memory"
	"github.com/quocanhngo/talkcore/internal/service"
	"github.com/quocanhngo/talkcore/internal/ws"
	"github.com/quocanhngo/talkcore/migrations"
	"github.com/quocanhngo/talkcore/pkg/auth"
	"github.com/quocanhngo/talkcore/pkg/logger"
	"github.com/quocanhngo/talkcore/pkg/notification"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// @title           talkcore API
// @version         1.0
// @description     Messaging core: conversations, ordered message history, unread tracking and realtime delivery.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// stores groups what the chosen STORE_DRIVER provides
type stores struct {
	convs    repository.ConversationStore
	msgs     repository.MessageStore
	users    *repository.UserRepository // nil with the memory driver
	identity service.IdentityResolver
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting talkcore", zap.String("env", cfg.App.Env), zap.String("store", cfg.App.StoreDriver))

	// ==================== Metrics ====================
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ==================== Redis ====================
	rdb := connectRedis(ctx, cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}

	// ==================== Storage ====================
	st, err := openStores(ctx, cfg, log, rdb)
	if err != nil {
		return err
	}

	// ==================== Realtime & notifications ====================
	var bus ws.Bus
	if rdb != nil {
		bus = ws.NewRedisBus(rdb, ws.DefaultChannel)
	}
	hub := ws.NewHub(bus, log, m, func(userID uuid.UUID, online bool) {
		log.Debug("presence changed", zap.Stringer("user_id", userID), zap.Bool("online", online))
	})
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	sinks := []notify.Sink{hub}
	if st.users != nil {
		fcm, err := notification.NewFCMClient(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Warn("firebase unavailable, push disabled", zap.Error(err))
		} else if fcm != nil {
			sinks = append(sinks, notification.NewPushSink(fcm, st.users, st.identity, log))
			log.Info("push notifications enabled")
		}
	}
	dispatcher := notify.NewDispatcher(log, m, notify.Options{
		QueueSize: cfg.Notify.QueueSize,
		Workers:   cfg.Notify.Workers,
		Timeout:   cfg.Notify.Timeout,
	}, sinks...)
	dispatcher.Start()
	defer dispatcher.Close()

	chatService := service.NewChatService(st.convs, st.msgs, st.identity, dispatcher, log, m)

	// ==================== Reconciler ====================
	if cfg.Reconcile.Enabled {
		reconciler, err := service.NewReconciler(st.convs, st.msgs, service.ReconcilerOptions{
			Cron:      cfg.Reconcile.Cron,
			BatchSize: cfg.Reconcile.BatchSize,
			Grace:     cfg.Reconcile.Grace,
		}, log, m)
		if err != nil {
			return err
		}
		reconciler.Start(hubCtx)
	}

	// ==================== Gin Router ====================
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	var revoked middleware.RevocationList
	if rdb != nil {
		revoked = middleware.NewRedisRevocationList(rdb)
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log, m), middleware.CORSMiddleware(cfg.CORS.Origins))

	// swagger.json is generated into ./docs by `swag init -g cmd/server/main.go`
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.json")))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "talkcore",
			"store":   cfg.App.StoreDriver,
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api/v1", middleware.AuthMiddleware(jwtManager, revoked))
	handler.RegisterChatRoutes(api, handler.NewChatHandler(chatService, log),
		middleware.SendRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))

	// WebSocket endpoint (auth via query parameter)
	wsHandler := handler.NewWSHandler(hub, chatService, jwtManager, revoked, cfg.CORS.Origins, log)
	router.GET("/ws", wsHandler.HandleWebSocket)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("listening", zap.String("addr", srv.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}

// connectRedis returns nil when Redis is unreachable outside production.
// Without it the hub delivers locally, tokens are not checked for revocation
// and identities are not cached.
func connectRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		if cfg.App.Env == "production" {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		log.Warn("redis unavailable, running single-instance", zap.Error(err))
		_ = rdb.Close()
		return nil
	}
	log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr()))
	return rdb
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger, rdb *redis.Client) (*stores, error) {
	switch cfg.App.StoreDriver {
	case "memory":
		convs, msgs := memory.NewStores()
		return &stores{convs: convs, msgs: msgs, identity: service.StaticDirectory{}}, nil

	case "postgres":
		gormLogger := gormlogger.Default.LogMode(gormlogger.Warn)
		if cfg.App.Env == "development" {
			gormLogger = gormlogger.Default.LogMode(gormlogger.Info)
		}
		db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{Logger: gormLogger})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		log.Info("connected to postgres")

		if err := migrations.Run(cfg.DB.URL(), log); err != nil {
			log.Warn("migration failed, falling back to AutoMigrate", zap.Error(err))
			if err := db.WithContext(ctx).AutoMigrate(
				&model.Conversation{},
				&model.Participant{},
				&model.Message{},
				&model.Reaction{},
			); err != nil {
				return nil, fmt.Errorf("migrate database: %w", err)
			}
		}

		users := repository.NewUserRepository(db)
		var idCache *cache.IdentityCache
		if rdb != nil {
			idCache = cache.NewIdentityCache(rdb, cfg.Redis.IdentityTTL)
		}
		return &stores{
			convs:    repository.NewConversationRepository(db),
			msgs:     repository.NewMessageRepository(db),
			users:    users,
			identity: service.NewUserDirectory(users, idCache, log),
		}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.App.StoreDriver)
	}
}
