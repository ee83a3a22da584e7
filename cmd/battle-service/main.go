package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codeverse/internal/battle/controller"
	"codeverse/internal/battle/judge"
	"codeverse/internal/battle/repository"
	"codeverse/internal/battle/room"
	"codeverse/internal/battle/sandbox"
	"codeverse/internal/battle/service"
	"codeverse/internal/battle/transport"
	"codeverse/internal/common/cache"
	"codeverse/internal/common/db"
	commonmw "codeverse/internal/common/http/middleware"
	"codeverse/internal/common/mq"
	"codeverse/internal/common/storage"
	"codeverse/pkg/utils/logger"
)

const defaultConfigPath = "configs/battle_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka)
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	profiles, err := sandbox.NewLocalProfileRepository(appCfg.Language.Profiles)
	if err != nil {
		logger.Error(context.Background(), "init language profiles failed", zap.Error(err))
		return
	}
	executor, err := sandbox.NewProcessExecutor(appCfg.Sandbox.toSandboxConfig(), profiles)
	if err != nil {
		logger.Error(context.Background(), "init sandbox executor failed", zap.Error(err))
		return
	}
	battleJudge, err := judge.New(executor, appCfg.Judge.toLimits())
	if err != nil {
		logger.Error(context.Background(), "init judge failed", zap.Error(err))
		return
	}

	eventPublisher, err := repository.NewEventPublisher(mqClient, appCfg.Events.BattleEndedTopic)
	if err != nil {
		logger.Error(context.Background(), "init event publisher failed", zap.Error(err))
		return
	}
	problemRepo := repository.NewProblemRepository(mysqlDB, redisCache)
	battleRepo := repository.NewBattleRepository(mysqlDB, redisCache)
	submissionRepo := repository.NewSubmissionRepository(mysqlDB, objStorage, appCfg.Submission.Bucket)

	registry := room.NewRegistry()
	coordinator := service.NewCoordinator(
		appCfg.Battle,
		registry,
		battleJudge,
		problemRepo,
		battleRepo,
		submissionRepo,
		eventPublisher,
	)
	defer coordinator.Shutdown()

	hub := transport.NewHub(coordinator, registry, transport.NewAuthenticator(appCfg.Auth))
	coordinator.Bind(hub)

	httpServer := buildHTTPServer(appCfg, coordinator, hub)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "battle http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(appCfg *AppConfig, coordinator *service.Coordinator, hub *transport.Hub) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.CORSMiddleware(appCfg.CORS))
	router.Use(requestLogger())

	battleController := controller.NewBattleController(coordinator)
	api := router.Group("/api/v1")
	api.POST("/battles", battleController.Create)
	api.GET("/battles/:id", battleController.Get)
	router.GET("/ws", hub.ServeWS)

	return &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
