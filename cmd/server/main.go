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
	"github.com/joho/godotenv"

	"shorturl-redirector/internal/config"
	"shorturl-redirector/internal/guard"
	"shorturl-redirector/internal/handler"
	"shorturl-redirector/internal/limiter"
	"shorturl-redirector/internal/middleware"
	"shorturl-redirector/internal/store"
	"shorturl-redirector/pkg/database"
	"shorturl-redirector/pkg/logger"
)

func main() {
	// .env 可选，容器环境直接注入环境变量
	_ = godotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Println("配置加载失败:", err)
		os.Exit(1)
	}

	logger.InitLogger(cfg.App.Mode)
	defer func() {
		if err := logger.Logger.Sync(); err != nil {
			fmt.Println("日志同步失败:", err)
		}
	}()
	sugaredLogger := logger.Sugar

	db, err := database.InitPostgres(&database.Options{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		User:           cfg.Database.User,
		Password:       cfg.Database.Password,
		Name:           cfg.Database.Name,
		SSLMode:        cfg.Database.SSLMode,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		MaxOpenConns:   cfg.Database.MaxOpenConns,
		MaxIdleConns:   cfg.Database.MaxIdleConns,
	})
	if err != nil {
		sugaredLogger.Fatalf("数据库初始化失败: %v", err)
	}
	sugaredLogger.Info("✅ 数据库连接成功")

	rateLimiter := limiter.New(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)

	requestGuard, err := guard.New(cfg.Redirect.ShortIDPattern, cfg.Redirect.BlockedAgents, rateLimiter)
	if err != nil {
		sugaredLogger.Fatalf("准入闸门初始化失败: %v", err)
	}

	urlStore := store.New(db, sugaredLogger)
	redirectHandler := handler.NewRedirectHandler(urlStore, requestGuard, cfg.Redirect.BlockedHosts, cfg.Redirect.FallbackURL, sugaredLogger)

	if cfg.App.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	// 没有这个开关 gin 不会触发 NoMethod
	router.HandleMethodNotAllowed = true
	router.Use(middleware.GinZapRecovery(logger.Logger, cfg.Redirect.FallbackURL, true))
	router.Use(middleware.GinZapLogger(logger.Logger))

	registerRoutes(router, redirectHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugaredLogger.Fatalf("服务启动失败: %v", err)
		}
	}()
	sugaredLogger.Infof("🚀 服务启动成功, 监听端口 %d", cfg.Server.Port)

	// 等待退出信号后优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugaredLogger.Info("收到退出信号, 正在关停...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		sugaredLogger.Errorf("关停失败: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			sugaredLogger.Errorf("关闭连接池失败: %v", err)
		}
	}
	sugaredLogger.Info("✅ 服务已退出")
}

func registerRoutes(router *gin.Engine, redirectHandler *handler.RedirectHandler) {
	router.GET("/", redirectHandler.Index)
	router.GET("/health", redirectHandler.HealthCheck)
	router.GET("/:code", redirectHandler.Redirect)

	// 其余路径一律改写为兜底跳转
	router.NoRoute(redirectHandler.Fallback)
	router.NoMethod(redirectHandler.Fallback)
}
