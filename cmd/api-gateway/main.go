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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/mercaflow/intake-api/api/swagger"
	"github.com/mercaflow/intake-api/internal/clients"
	"github.com/mercaflow/intake-api/internal/handler"
	"github.com/mercaflow/intake-api/internal/middleware"
	"github.com/mercaflow/intake-api/internal/models"
	"github.com/mercaflow/intake-api/internal/repository"
	"github.com/mercaflow/intake-api/internal/service"
	"github.com/mercaflow/intake-api/pkg/cache"
	"github.com/mercaflow/intake-api/pkg/config"
	"github.com/mercaflow/intake-api/pkg/database"
	"github.com/mercaflow/intake-api/pkg/jobs"
	"github.com/mercaflow/intake-api/pkg/logger"
	corsmiddleware "github.com/mercaflow/intake-api/pkg/middleware/cors"
	reqidmiddleware "github.com/mercaflow/intake-api/pkg/middleware/requestid"
	"github.com/mercaflow/intake-api/pkg/storage"
)

// @title Incoming Product Verification API
// @version 1.0.0
// @description Priority queue, step verification and warehouse location assignment for incoming shipments
// @BasePath /api/v1
// @schemes http

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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Stats.CacheTTL, logr, redisClient != nil)

	queueRepo := repository.NewQueueItemRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	submissionRepo := repository.NewStepSubmissionRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	catalog := clients.NewCatalogClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, logr)

	notifyQueue := jobs.NewQueue("notifications", service.NotificationHandler(logr), jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		MaxRetries: cfg.Notifications.WorkerRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notifyQueue.Start(ctx)
	defer notifyQueue.Stop()
	notifySvc := service.NewNotificationService(notifyQueue, cfg.Notifications.Enabled, logr)

	slipArchive, err := storage.NewSlipArchive(cfg.Slips.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init slip archive", "error", err)
	}
	slipSigner := storage.NewDownloadTokenSigner(cfg.JWT.Secret, cfg.Slips.TokenTTL)

	queueSvc := service.NewQueueService(queueRepo, catalog, auditRepo, cacheSvc, cfg.Intake, cfg.Stats.CacheTTL, logr)
	verificationSvc := service.NewVerificationService(queueRepo, submissionRepo, auditRepo, cacheSvc, notifySvc, cfg.Intake, logr).
		WithSlipArchive(slipArchive, slipSigner).
		WithMetrics(metricsSvc)
	assignmentSvc := service.NewAssignmentService(locationRepo, queueRepo, auditRepo, cacheSvc, cfg.Warehouse, cfg.Stats.CacheTTL, logr).
		WithMetrics(metricsSvc)

	if cfg.Sweeper.Enabled {
		sweeper := service.NewSweepService(queueRepo, notifySvc, cfg.Sweeper.Interval, logr)
		go sweeper.Run(ctx)
	}

	if cfg.Slips.Retention > 0 {
		go func() {
			ticker := time.NewTicker(12 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := slipArchive.CleanupOlderThan(cfg.Slips.Retention); err != nil {
						logr.Sugar().Warnw("slip cleanup failed", "error", err)
					}
				}
			}
		}()
	}

	queueHandler := handler.NewQueueHandler(queueSvc)
	verificationHandler := handler.NewVerificationHandler(verificationSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	warehouseHandler := handler.NewWarehouseHandler(assignmentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/snapshot", metricsHandler.Snapshot)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.Identity(cfg.JWT.Secret))

	queue := api.Group("/queue")
	{
		queue.POST("", queueHandler.Create)
		queue.GET("", queueHandler.List)
		queue.GET("/stats", queueHandler.Stats)
		queue.GET("/export", middleware.Audit(auditRepo, models.AuditActionQueueExport, "queue"), queueHandler.Export)
		queue.GET("/:id", queueHandler.Get)
		queue.PATCH("/:id", queueHandler.Update)
		queue.POST("/:id/assign", queueHandler.Assign)

		queue.GET("/:id/workflow", verificationHandler.Workflow)
		queue.POST("/:id/steps/:step", verificationHandler.ExecuteStep)
		queue.POST("/:id/quality-check", verificationHandler.QualityCheck)
		queue.POST("/:id/hold", verificationHandler.Hold)
		queue.POST("/:id/resume", verificationHandler.Resume)
		queue.POST("/:id/reject", verificationHandler.Reject)
		queue.POST("/:id/complete", verificationHandler.Complete)
		queue.GET("/:id/slip", verificationHandler.Slip)

		queue.POST("/:id/location/auto", assignmentHandler.AutoAssign)
		queue.POST("/:id/location/manual", assignmentHandler.ManualAssign)
		queue.GET("/:id/location/suggestions", assignmentHandler.Suggestions)
	}

	warehouse := api.Group("/warehouse")
	{
		warehouse.GET("/availability", warehouseHandler.Availability)
		warehouse.GET("/locations", warehouseHandler.List)
		warehouse.POST("/locations",
			middleware.RequireRoles(models.RoleAdmin, models.RoleSupervisor),
			middleware.Audit(auditRepo, models.AuditActionLocationRegister, "warehouse_location"),
			warehouseHandler.Register,
		)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
