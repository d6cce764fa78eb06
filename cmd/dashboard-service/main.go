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

	"testbridge/internal/ciclient"
	"testbridge/internal/common/cache"
	commonmw "testbridge/internal/common/http/middleware"
	"testbridge/internal/common/storage"
	"testbridge/internal/dashboard/controller"
	"testbridge/internal/dashboard/repository"
	"testbridge/internal/dashboard/service"
	"testbridge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/dashboard_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load env file failed: %v\n", err)
		return
	}

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

	ctx := context.Background()

	resultStore, closeStore, err := buildResultStore(ctx, appCfg)
	if err != nil {
		logger.Error(ctx, "init result store failed", zap.Error(err))
		return
	}
	defer closeStore()

	objStorage, err := buildObjectStorage(ctx, appCfg.Storage)
	if err != nil {
		logger.Error(ctx, "init object storage failed", zap.Error(err))
		return
	}

	dashboardService, err := service.NewDashboardService(service.Config{
		ResultStore: resultStore,
		TestCases:   repository.NewTestCaseRepository(objStorage, appCfg.Storage.Bucket, appCfg.Storage.TestCasesKey),
		Storage:     objStorage,
		Bucket:      appCfg.Storage.Bucket,
		Archive: service.ArchiveConfig{
			Enabled: *appCfg.Upload.Archive.Enabled,
			Prefix:  appCfg.Upload.Archive.Prefix,
			Keep:    appCfg.Upload.Archive.Keep,
		},
		Sheet:          appCfg.Upload.sheetOptions(),
		MaxUploadBytes: appCfg.Upload.MaxBytes,
		Timeouts: service.TimeoutConfig{
			Store:   appCfg.Store.Timeout,
			Storage: appCfg.Storage.Timeout,
		},
	})
	if err != nil {
		logger.Error(ctx, "init dashboard service failed", zap.Error(err))
		return
	}

	go checkJenkins(ctx, appCfg.CI)

	httpServer := buildHTTPServer(appCfg, dashboardService)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "dashboard http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("store", appCfg.Store.Backend),
			zap.String("storage", appCfg.Storage.Backend),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
}

func buildResultStore(ctx context.Context, cfg *AppConfig) (repository.ResultStore, func(), error) {
	if cfg.Store.Backend != storeBackendRedis {
		return repository.NewMemoryResultStore(), func() {}, nil
	}
	redisCache, err := cache.NewRedisCacheWithConfig(&cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	store := repository.NewRedisResultStore(redisCache, cfg.Store.RedisKey)
	initCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
	defer cancel()
	if err := store.Init(initCtx); err != nil {
		_ = redisCache.Close()
		return nil, nil, err
	}
	return store, func() { _ = redisCache.Close() }, nil
}

func buildObjectStorage(ctx context.Context, cfg StorageConfig) (storage.ObjectStorage, error) {
	if cfg.Backend != storageBackendMinIO {
		return storage.NewLocalStorage(cfg.LocalDir)
	}
	minioStorage, err := storage.NewMinIOStorage(cfg.MinIO)
	if err != nil {
		return nil, err
	}
	bucketCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := minioStorage.EnsureBucket(bucketCtx, cfg.Bucket, cfg.MinIO.Region); err != nil {
		return nil, err
	}
	return minioStorage, nil
}

// checkJenkins logs whether the configured job is reachable. The dashboard
// does not depend on it.
func checkJenkins(ctx context.Context, cfg ciclient.Config) {
	if !cfg.Configured() {
		logger.Info(ctx, "jenkins not configured")
		return
	}
	client, err := ciclient.NewJenkinsClient(cfg, nil)
	if err != nil {
		logger.Warn(ctx, "jenkins config invalid", zap.Error(err))
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		logger.Warn(ctx, "jenkins unreachable", zap.String("job_url", cfg.JobURL), zap.Error(err))
		return
	}
	logger.Info(ctx, "jenkins reachable", zap.String("job_url", cfg.JobURL))
}

func buildRouter(cfg *AppConfig, dashboardService *service.DashboardService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.CORSMiddleware(cfg.CORS))
	router.Use(requestLogger())

	controller.NewDashboardController(dashboardService).RegisterRoutes(router)
	return router
}

func buildHTTPServer(cfg *AppConfig, dashboardService *service.DashboardService) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      buildRouter(cfg, dashboardService),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
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
