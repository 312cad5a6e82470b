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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/course-grades-api/internal/handler"
	"github.com/noah-isme/course-grades-api/internal/models"
	"github.com/noah-isme/course-grades-api/internal/repository"
	"github.com/noah-isme/course-grades-api/internal/service"
	"github.com/noah-isme/course-grades-api/pkg/cache"
	"github.com/noah-isme/course-grades-api/pkg/config"
	"github.com/noah-isme/course-grades-api/pkg/database"
	"github.com/noah-isme/course-grades-api/pkg/export"
	"github.com/noah-isme/course-grades-api/pkg/jobs"
	"github.com/noah-isme/course-grades-api/pkg/logger"
)

// @title Course Grades API
// @version 1.0.0
// @description Interactive course grade views with what-if scoring
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var rdb *redis.Client
	rdb, err = cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running without course cache and event fan-out", zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close() //nolint:errcheck
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(rdb, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && rdb != nil)

	dataSvc := service.NewCourseDataService(service.CourseDataServiceParams{
		Courses:        repository.NewCourseRepository(db),
		GradingPeriods: repository.NewGradingPeriodRepository(db),
		Groups:         repository.NewAssignmentGroupRepository(db),
		Enrollments:    repository.NewEnrollmentRepository(db),
		Submissions:    repository.NewSubmissionRepository(db),
		Cache:          cacheSvc,
		CacheTTL:       cfg.Cache.TTL,
		Logger:         logr,
	})

	notifier := service.NewRecomputeNotifier(service.RecomputeNotifierConfig{
		Queue: jobs.QueueConfig{
			Workers:    cfg.Recompute.Workers,
			MaxRetries: cfg.Recompute.Retries,
			RetryDelay: cfg.Recompute.RetryDelay,
		},
		Metrics: metrics,
		Logger:  logr,
	}, service.RecomputeListenerFunc(func(_ context.Context, event models.GradeRecomputedEvent) error {
		logr.Debug("grade recomputed",
			zap.String("session_id", event.SessionID),
			zap.String("course_id", event.CourseID))
		return nil
	}))
	if cfg.Recompute.Enabled && rdb != nil {
		notifier.Subscribe(repository.NewEventPublisher(rdb, cfg.Recompute.Channel))
	}
	notifier.Start(ctx)

	sessions := service.NewGradeSessionService(service.GradeSessionServiceParams{
		Source:    dataSvc,
		Events:    notifier,
		Metrics:   metrics,
		Validator: validator.New(),
		Logger:    logr,
		IdleTTL:   cfg.Sessions.IdleTTL,
		MaxScore:  cfg.WhatIf.MaxScore,
	})
	sessions.StartSweeper(ctx, cfg.Sessions.SweepInterval)

	exporter := service.NewGradeExportService(sessions, export.NewCSVExporter(), export.NewPDFExporter(), logr)
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	dependencies := map[string]handler.Pinger{"postgres": db}
	if rdb != nil {
		dependencies["redis"] = handler.PingerFunc(cacheRepo.Ping)
	}

	router := newRouter(cfg, logr, routerDeps{
		metrics:  metrics,
		tokens:   tokens,
		sessions: handler.NewGradeSessionHandler(sessions, exporter),
		health:   handler.NewMetricsHandler(metrics, dependencies),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	sessions.CloseAll()
	notifier.Stop()
}
