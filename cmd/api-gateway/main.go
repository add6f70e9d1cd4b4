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

	_ "github.com/madrasati/tuition-core-api/api/swagger"
	"github.com/madrasati/tuition-core-api/internal/handler"
	"github.com/madrasati/tuition-core-api/internal/middleware"
	"github.com/madrasati/tuition-core-api/internal/models"
	"github.com/madrasati/tuition-core-api/internal/repository"
	"github.com/madrasati/tuition-core-api/internal/service"
	"github.com/madrasati/tuition-core-api/pkg/cache"
	"github.com/madrasati/tuition-core-api/pkg/config"
	"github.com/madrasati/tuition-core-api/pkg/database"
	"github.com/madrasati/tuition-core-api/pkg/jobs"
	"github.com/madrasati/tuition-core-api/pkg/logger"
	"github.com/madrasati/tuition-core-api/pkg/mailer"
	corsmiddleware "github.com/madrasati/tuition-core-api/pkg/middleware/cors"
	reqidmiddleware "github.com/madrasati/tuition-core-api/pkg/middleware/requestid"
)

// @title Tuition Core API
// @version 1.0.0
// @description Back-office core for the tuition platform
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, roster caching disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	examRepo := repository.NewExamRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	summaryRepo := repository.NewSummaryRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	tokenSvc := service.NewTokenService(cfg.JWT)

	summarySvc := service.NewSummaryService(summaryRepo, examRepo, groupRepo, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, userRepo, courseRepo, summarySvc, auditRepo, cacheRepo, validate, logr)
	groupSvc := service.NewGroupService(groupRepo, userRepo, auditRepo, validate, logr)
	audienceSvc := service.NewAudienceService(userRepo, enrollmentRepo, courseRepo, examRepo, cacheRepo, cfg.Audience.RosterCacheTTL, logr)

	var emailMailer mailer.Mailer
	if cfg.Notifications.EmailProvider == "sendgrid" && cfg.Notifications.SendGridKey != "" {
		emailMailer = mailer.NewSendGridMailer(cfg.Notifications.SendGridKey, cfg.Notifications.FromName, cfg.Notifications.FromEmail)
	} else {
		emailMailer = mailer.NewConsoleMailer(logr)
	}

	emailQueue := jobs.NewQueue("notification-email", service.EmailDeliveryHandler(emailMailer, logr), jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		BufferSize: cfg.Notifications.QueueSize,
		MaxRetries: cfg.Notifications.WorkerRetries,
		Logger:     logr,
	})

	var notificationSvc *service.NotificationService
	if cfg.Notifications.EmailEnabled {
		notificationSvc = service.NewNotificationService(notificationRepo, audienceSvc, nil, emailQueue, auditRepo, metricsSvc, validate, logr)
	} else {
		notificationSvc = service.NewNotificationService(notificationRepo, audienceSvc, nil, nil, auditRepo, metricsSvc, validate, logr)
	}

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, summarySvc)
	groupHandler := handler.NewGroupHandler(groupSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := middleware.RequireStaff()
	admin := middleware.RBAC(string(models.RoleAdmin))

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))
	{
		api.GET("/enrollments", staff, enrollmentHandler.List)
		api.POST("/enrollments", staff, enrollmentHandler.Grant)
		api.POST("/enrollments/self", middleware.RBAC(string(models.RoleStudent)), enrollmentHandler.SelfEnroll)
		api.POST("/enrollments/bulk", staff, enrollmentHandler.BulkGrant)
		api.GET("/enrollments/:id", staff, enrollmentHandler.Get)
		api.POST("/enrollments/:id/activate", staff, enrollmentHandler.Activate)
		api.POST("/enrollments/:id/suspend", staff, enrollmentHandler.Suspend)
		api.POST("/enrollments/:id/terminate", admin, enrollmentHandler.Terminate)
		api.POST("/enrollments/:id/reactivate", admin, enrollmentHandler.Reactivate)
		api.GET("/enrollments/:id/summary", staff, enrollmentHandler.Summary)

		api.GET("/groups", staff, groupHandler.List)
		api.GET("/groups/:id/members", staff, groupHandler.Members)
		api.POST("/groups/transfers", staff, groupHandler.Transfer)
		api.GET("/students/:id/transfers", staff, groupHandler.TransferHistory)

		api.GET("/notifications", staff, notificationHandler.List)
		api.POST("/notifications", staff, notificationHandler.Dispatch)
		api.POST("/notifications/resolve", staff, notificationHandler.Preview)

		if cfg.Exports.Enabled {
			api.GET("/enrollments/:id/summary/export", staff,
				middleware.Audit(auditRepo, "SUMMARY_EXPORT", "activity_summaries"), enrollmentHandler.SummaryPDF)
			api.POST("/notifications/resolve/export", staff,
				middleware.Audit(auditRepo, "AUDIENCE_EXPORT", "notifications"), notificationHandler.ExportAudience)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	emailQueue.Start(ctx)

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
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	emailQueue.Stop()
	cacheRepo.Close()
}
