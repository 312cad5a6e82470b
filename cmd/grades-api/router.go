package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-grades-api/api/swagger"
	"github.com/noah-isme/course-grades-api/internal/handler"
	"github.com/noah-isme/course-grades-api/internal/middleware"
	"github.com/noah-isme/course-grades-api/internal/service"
	"github.com/noah-isme/course-grades-api/pkg/config"
	"github.com/noah-isme/course-grades-api/pkg/logger"
	reqidmiddleware "github.com/noah-isme/course-grades-api/pkg/middleware/requestid"
)

type routerDeps struct {
	metrics  *service.MetricsService
	tokens   middleware.TokenValidator
	sessions *handler.GradeSessionHandler
	health   *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(deps.tokens))
	api.POST("/courses/:courseId/grade-sessions", deps.sessions.Create)

	sessions := api.Group("/grade-sessions/:sessionId")
	sessions.GET("", deps.sessions.Get)
	sessions.DELETE("", deps.sessions.Close)
	sessions.PUT("/grading-period", deps.sessions.SelectGradingPeriod)
	sessions.POST("/refresh", deps.sessions.Refresh)
	sessions.PUT("/what-if", deps.sessions.SetWhatIfMode)
	sessions.PUT("/what-if/:assignmentId", deps.sessions.SetWhatIfScore)
	sessions.PUT("/graded-only", deps.sessions.SetGradedOnly)
	sessions.GET("/export", deps.sessions.Export)

	return r
}
