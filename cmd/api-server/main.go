package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusops/campus-records-api/api/swagger"
	"github.com/campusops/campus-records-api/internal/handler"
	"github.com/campusops/campus-records-api/internal/middleware"
	"github.com/campusops/campus-records-api/internal/repository"
	"github.com/campusops/campus-records-api/internal/service"
	"github.com/campusops/campus-records-api/pkg/cache"
	"github.com/campusops/campus-records-api/pkg/config"
	"github.com/campusops/campus-records-api/pkg/database"
	"github.com/campusops/campus-records-api/pkg/logger"
	corsmiddleware "github.com/campusops/campus-records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusops/campus-records-api/pkg/middleware/requestid"
)

// @title Campus Records API
// @version 1.0.0
// @description Credential, academic record, and billing services for campus administration
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	validate := validator.New()

	identityRepo := repository.NewIdentityRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Lockout counters live in redis when available, in-process otherwise.
	var attempts service.AttemptStore
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		attempts = repository.NewAttemptRepository(redisClient, cfg.Lockout.Window, logr)
	} else {
		logr.Sugar().Warnw("redis disabled, using in-process lockout counters")
		attempts = service.NewMemoryAttemptStore(cfg.Lockout.Window)
	}

	auditSvc := service.NewAuditService(auditRepo, logr, service.AuditServiceConfig{
		Workers:      cfg.Audit.Workers,
		BufferSize:   cfg.Audit.BufferSize,
		StoreTimeout: cfg.Registrar.StoreTimeout,
	})
	auditCtx, auditCancel := context.WithCancel(context.Background())
	auditSvc.Start(auditCtx)
	defer auditCancel()
	defer auditSvc.Stop()

	metricsSvc := service.NewMetricsService()

	credentialSvc := service.NewCredentialService(identityRepo, attempts, auditSvc, metricsSvc, validate, logr, service.CredentialConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		IDPrefix:           cfg.Registrar.IDPrefix,
		SaltLength:         cfg.Registrar.SaltLength,
		LockoutThreshold:   cfg.Lockout.Threshold,
		StoreTimeout:       cfg.Registrar.StoreTimeout,
	})

	recordsSvc := service.NewRecordsService(courseRepo, enrollmentRepo, identityRepo, auditSvc, validate, logr, service.RecordsConfig{
		CreditHourLimit: cfg.Registrar.CreditHourLimit,
		StoreTimeout:    cfg.Registrar.StoreTimeout,
	})

	billingSvc := service.NewBillingService(enrollmentRepo, courseRepo, paymentRepo, identityRepo, auditSvc, validate, logr, service.BillingConfig{
		CostPerCreditHour: cfg.Registrar.CostPerCreditHour,
		StoreTimeout:      cfg.Registrar.StoreTimeout,
	})

	exportSvc := service.NewExportService(recordsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Services{
		Credentials: credentialSvc,
		Records:     recordsSvc,
		Billing:     billingSvc,
		Export:      exportSvc,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
