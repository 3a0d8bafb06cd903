package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/reservation/internal/adapter/handler"
	"github.com/rl1809/reservation/internal/adapter/handler/rpc"
	"github.com/rl1809/reservation/internal/adapter/messaging"
	"github.com/rl1809/reservation/internal/adapter/storage"
	"github.com/rl1809/reservation/internal/config"
	"github.com/rl1809/reservation/internal/core/service"
	"github.com/rl1809/reservation/internal/platform/observability"
	"github.com/rl1809/reservation/internal/port"
)

// store bundles the repositories one backend provides.
type store interface {
	port.Transactor
	port.MemberRepository
	port.InventoryRepository
	port.BookingRepository
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, shutdownLogs, err := observability.NewLogger(ctx, cfg.OtelEndpoint)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}

	// Initialize store
	var db store
	var closeDB func() error
	switch cfg.StoreDriver {
	case config.StoreMySQL:
		sqlDB, err := storage.OpenMySQL(cfg.MySQLDSN)
		if err != nil {
			logger.Fatal("failed to open mysql", zap.Error(err))
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			logger.Fatal("failed to ping mysql", zap.Error(err))
		}
		mysqlAdapter := storage.NewMySQLAdapter(sqlDB)
		if err := mysqlAdapter.Migrate(ctx); err != nil {
			logger.Fatal("failed to migrate mysql", zap.Error(err))
		}
		db, closeDB = mysqlAdapter, sqlDB.Close
		logger.Info("connected to mysql")
	default:
		db, closeDB = storage.NewMemoryAdapter(), func() error { return nil }
		logger.Info("using in-memory store")
	}

	// Initialize idempotency store
	var idempotency port.IdempotencyStore
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: config.RedisPoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		idempotency = storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)
		logger.Info("connected to redis")
	} else {
		idempotency = storage.NewMemoryIdempotency(cfg.IdempotencyTTL)
		logger.Info("using in-memory idempotency (set REDIS_ADDR for redis)")
	}

	// Initialize event publisher
	var publisher port.EventPublisher = messaging.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = messaging.NewKafkaPublisher(messaging.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		logger.Info("publishing booking events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	dispatcher := service.NewEventDispatcher(publisher, cfg.EventWorkers, cfg.EventQueueSize, logger)

	// Initialize services
	members := service.NewMemberService(db, logger)
	inventory := service.NewInventoryService(db, logger)
	bookings := service.NewBookingService(db, members, inventory, db, logger,
		service.WithIdempotency(idempotency),
		service.WithEvents(dispatcher),
		service.WithTimeout(cfg.OperationTimeout),
	)

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < dispatcher.Workers(); i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			dispatcher.Run(id)
		}(i)
	}
	logger.Info("started event workers", zap.Int("count", dispatcher.Workers()))

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	rpc.RegisterBookingServiceServer(grpcServer, handler.NewGRPCHandler(bookings, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	gin.SetMode(gin.ReleaseMode)
	httpHandler := handler.NewHTTPHandler(bookings, members, inventory, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpHandler.Router(),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Close event queue and wait for workers to drain it
	dispatcher.Close()
	wg.Wait()
	logger.Info("event workers stopped")

	if err := publisher.Close(); err != nil {
		logger.Error("failed to close publisher", zap.Error(err))
	}
	if rdb != nil {
		rdb.Close()
	}
	if err := closeDB(); err != nil {
		logger.Error("failed to close store", zap.Error(err))
	}
	logger.Info("connections closed")

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("failed to flush traces", zap.Error(err))
	}
	if err := shutdownLogs(shutdownCtx); err != nil {
		log.Printf("failed to flush logs: %v", err)
	}
}
