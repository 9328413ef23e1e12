package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/pbj-app/pbj-api/api/swagger"
	"github.com/pbj-app/pbj-api/internal/extraction"
	"github.com/pbj-app/pbj-api/internal/handler"
	"github.com/pbj-app/pbj-api/internal/middleware"
	"github.com/pbj-app/pbj-api/internal/models"
	"github.com/pbj-app/pbj-api/internal/redaction"
	"github.com/pbj-app/pbj-api/internal/repository"
	"github.com/pbj-app/pbj-api/internal/service"
	"github.com/pbj-app/pbj-api/pkg/cache"
	"github.com/pbj-app/pbj-api/pkg/config"
	"github.com/pbj-app/pbj-api/pkg/database"
	"github.com/pbj-app/pbj-api/pkg/jobs"
	"github.com/pbj-app/pbj-api/pkg/logger"
	corsmiddleware "github.com/pbj-app/pbj-api/pkg/middleware/cors"
	reqidmiddleware "github.com/pbj-app/pbj-api/pkg/middleware/requestid"
	"github.com/pbj-app/pbj-api/pkg/storage"
)

// @title PBJ Behavior Records API
// @version 1.0.0
// @description Teacher note ingestion and behavior record management
// @BasePath /api
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	studentRepo := repository.NewStudentRepository(db)

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, summary caching disabled")
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Records.SummaryCacheTTL, logr, true)
	}

	auditDispatcher := service.NewAuditDispatcher(userRepo, jobs.QueueConfig{
		Workers: 2,
		Logger:  logr,
	})
	auditDispatcher.Start(context.Background())
	defer auditDispatcher.Stop()

	var redactor redaction.Redactor = redaction.Passthrough{}
	if cfg.Redaction.Enabled {
		redactor = redaction.NewHTTPClient(cfg.Redaction, logr)
	}
	extractor := extraction.NewOpenAIClient(cfg.LLM, logr)

	authSvc := service.NewAuthService(userRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "pbj-api",
	})
	noteSvc := service.NewNoteService(recordRepo, auditDispatcher, redactor, extractor, cacheSvc, metricsSvc, logr, cfg.Records)
	studentSvc := service.NewStudentService(studentRepo, auditDispatcher, logr, cfg.Roster)

	archive, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export archive", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Export.SignSecret, cfg.Export.TokenTTL)
	exportSvc := service.NewExportService(recordRepo, nil, nil, archive, signer, logr)

	go cleanupExports(archive, cfg.Export.RetainFor, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	noteHandler := handler.NewNoteHandler(noteSvc, exportSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	notes := api.Group("/notes", middleware.JWT(authSvc))
	notes.POST("/parse", noteHandler.Ingest)

	records := api.Group("/records", middleware.JWT(authSvc))
	records.GET("", noteHandler.ListRecords)
	records.GET("/summary", noteHandler.Summary)
	records.GET("/export", noteHandler.Export)
	records.GET("/export/download", noteHandler.ExportDownload)
	records.GET("/:id", noteHandler.GetRecord)
	records.PATCH("/:id", noteHandler.UpdateRecord)
	records.DELETE("/:id", noteHandler.DeleteRecord)

	students := api.Group("/students", middleware.JWT(authSvc))
	students.GET("", studentHandler.List)
	students.POST("/import", studentHandler.ImportRoster)

	system := api.Group("/system", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	system.GET("/status", metricsHandler.Status)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// cleanupExports prunes archived export files past their retention window.
func cleanupExports(archive *storage.LocalStorage, retain time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		deleted, err := archive.CleanupOlderThan(retain)
		if err != nil {
			logr.Warn("export cleanup failed", zap.Error(err))
			continue
		}
		if len(deleted) > 0 {
			logr.Info("pruned expired exports", zap.Int("count", len(deleted)))
		}
	}
}
