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

	"backoffice-service/config"
	"backoffice-service/internal/api"
	"backoffice-service/internal/broker"
	"backoffice-service/internal/redisclient"
	"backoffice-service/internal/service"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"
	"backoffice-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting backoffice service")

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	eventPublisher := broker.NewEventPublisher(producer, cfg.Kafka.TopicInventory, cfg.Kafka.TopicServiceOrders)

	loc, err := time.LoadLocation(cfg.Business.TimeZone)
	if err != nil {
		logger.Warn("Unknown time zone, using local time", zap.String("tz", cfg.Business.TimeZone), zap.Error(err))
		loc = time.Local
	}

	inventoryService := service.NewInventoryService(db, eventPublisher, redisClient, service.InventoryOptions{
		Debounce:        time.Duration(cfg.Business.AutosaveDebounceMs) * time.Millisecond,
		DefaultPageSize: cfg.Business.DefaultPageSize,
		MaxPageSize:     cfg.Business.MaxPageSize,
		LockTTL:         time.Duration(cfg.Business.ApprovalLockSeconds) * time.Second,
	})
	importService := service.NewImportService(db, eventPublisher, redisClient, loc,
		time.Duration(cfg.Business.ImportIdempotencyTTLMinute)*time.Minute)
	stockCache := service.NewStockCache(db, redisClient)

	ctx := context.Background()
	if err := stockCache.SyncStockToRedis(ctx); err != nil {
		logger.Warn("Failed to sync stock to Redis", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	inventoryConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicInventory, cfg.Kafka.ConsumerGroup)
	stockWorker := worker.NewStockCacheWorker(inventoryConsumer, stockCache)
	go func() {
		if err := stockWorker.Start(workerCtx); err != nil {
			logger.Error("Stock cache worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(inventoryService, importService, stockCache, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// pending count edits are written before the database closes
	inventoryService.Shutdown(shutdownCtx)

	workerCancel()
	if err := stockWorker.Stop(); err != nil {
		logger.Error("Failed to stop stock cache worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
