package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/recipehub/recipes-api/api/swagger"
	"github.com/recipehub/recipes-api/internal/handler"
	"github.com/recipehub/recipes-api/internal/middleware"
	"github.com/recipehub/recipes-api/internal/models"
	"github.com/recipehub/recipes-api/internal/repository"
	"github.com/recipehub/recipes-api/internal/service"
	"github.com/recipehub/recipes-api/pkg/cache"
	"github.com/recipehub/recipes-api/pkg/config"
	"github.com/recipehub/recipes-api/pkg/database"
	"github.com/recipehub/recipes-api/pkg/logger"
	corsmiddleware "github.com/recipehub/recipes-api/pkg/middleware/cors"
	reqidmiddleware "github.com/recipehub/recipes-api/pkg/middleware/requestid"
	"github.com/recipehub/recipes-api/pkg/storage"
)

// @title Recipes API
// @version 1.0.0
// @description Credential, session and profile backend for the recipe sharing platform
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
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, profile cache disabled", "error", err)
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Profiles.CacheTTL, logr, true)
	}

	validate := validator.New()

	authRepo := repository.NewAuthRepository(db)
	userRepo := repository.NewUserRepository(db)

	issuer := service.NewTokenIssuer(service.TokenIssuerConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Expiry:   cfg.JWT.Expiration,
	})

	authSvc := service.NewAuthService(authRepo, issuer, validate, logr, service.AuthServiceConfig{
		RefreshTokenExpiry:  cfg.Auth.RefreshTokenExpiration,
		PasswordResetExpiry: cfg.Auth.PasswordResetTTL,
	})
	userSvc := service.NewUserService(userRepo, authSvc, cacheSvc, cfg.Profiles.CacheTTL, validate, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	exportSigner := storage.NewSignedURLSigner(cfg.Exports.SigningSecret, cfg.Exports.DownloadTTL)
	exportSvc := service.NewExportService(authRepo, exportStore, exportSigner, logr, service.ExportServiceConfig{
		Workers:   cfg.Exports.Workers,
		Retention: 2 * cfg.Exports.DownloadTTL,
	})
	exportSvc.Start(context.Background())
	defer exportSvc.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
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
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
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
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/reset-password", authHandler.ResetPassword)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)

	users := api.Group("/users")
	users.GET("/:id", userHandler.Get)
	me := users.Group("/me", middleware.JWT(authSvc))
	me.GET("", userHandler.Me)
	me.GET("/stats", userHandler.Stats)
	me.PATCH("", middleware.Audit(authRepo, models.AuditActionProfileUpdate, "users"), userHandler.Update)
	me.DELETE("", middleware.Audit(authRepo, models.AuditActionAccountDeactivate, "users"), userHandler.Deactivate)
	me.POST("/exports", exportHandler.Request)
	me.GET("/exports/:jobId", exportHandler.Status)

	api.GET("/exports/download", exportHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := r.Run(addr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}
