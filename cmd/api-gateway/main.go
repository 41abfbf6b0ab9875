package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/edu-portal-api/api/swagger"
	"github.com/noah-isme/edu-portal-api/internal/handler"
	"github.com/noah-isme/edu-portal-api/internal/repository"
	"github.com/noah-isme/edu-portal-api/internal/service"
	"github.com/noah-isme/edu-portal-api/migrations"
	"github.com/noah-isme/edu-portal-api/pkg/cache"
	"github.com/noah-isme/edu-portal-api/pkg/config"
	"github.com/noah-isme/edu-portal-api/pkg/database"
	"github.com/noah-isme/edu-portal-api/pkg/jobs"
	"github.com/noah-isme/edu-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edu-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edu-portal-api/pkg/middleware/requestid"
)

const (
	recoverBatch    = 200
	shutdownTimeout = 10 * time.Second
)

// @title Edu Portal Interview API
// @version 1.0.0
// @description Interview scheduling and outcome workflow for hiring applications and instructor readiness gates
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	applied, err := database.NewMigrator(db, migrations.FS, logr).Up(ctx)
	if err != nil {
		logr.Fatal("failed to apply migrations", zap.Error(err))
	}
	if len(applied) > 0 {
		logr.Info("migrations applied", zap.Strings("versions", applied))
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	var taskCache *service.CacheService
	if cfg.Redis.Enabled && cfg.Dashboard.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, task cache disabled", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(client)
			defer cacheRepo.Close() //nolint:errcheck
			taskCache = service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, true)
		}
	}

	validate := validator.New()
	interviewRepo := repository.NewInterviewRepository(db)
	eventRepo := repository.NewEventRepository(db)
	userRepo := repository.NewUserRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	dispatcher := service.NewEventDispatcher(eventRepo, metrics, logr)
	queue := jobs.NewQueue("interview-events", dispatcher.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnGiveUp:   dispatcher.GiveUp,
	})
	queue.Start(ctx)
	defer queue.Stop()
	metrics.TrackQueueDepth("interview-events", queue.Pending)
	publisher := service.NewQueuePublisher(queue, logr)

	interviewSvc := service.NewInterviewService(interviewRepo, publisher, cfg.Interviews, logr,
		service.WithInterviewCache(taskCache),
		service.WithInterviewMetrics(metrics),
	)
	taskSvc := service.NewInterviewTaskService(interviewRepo, taskCache, metrics, cfg.Interviews, logr)

	go recoverOutbox(ctx, dispatcher, publisher, cfg.Notifications.RecoverInterval, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Routes{
		Auth:           handler.NewAuthHandler(authSvc),
		Interviews:     handler.NewInterviewHandler(interviewSvc),
		Tasks:          handler.NewTaskHandler(taskSvc),
		Events:         handler.NewEventHandler(dispatcher),
		Notifications:  handler.NewNotificationHandler(eventRepo),
		Metrics:        handler.NewMetricsHandler(metrics, db),
		Tokens:         authSvc,
		MetricsService: metrics,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// recoverOutbox republishes events left undispatched by a crash or a full queue.
func recoverOutbox(ctx context.Context, dispatcher *service.EventDispatcher, publisher service.EventPublisher, interval time.Duration, logr *zap.Logger) {
	if n := dispatcher.RecoverPending(ctx, publisher, recoverBatch); n > 0 {
		logr.Info("requeued pending outbox events", zap.Int("count", n))
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dispatcher.RecoverPending(ctx, publisher, recoverBatch)
		}
	}
}
