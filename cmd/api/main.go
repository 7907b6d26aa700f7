package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"order-fulfillment/internal/config"
	"order-fulfillment/internal/database"
	"order-fulfillment/internal/logger"
	"order-fulfillment/internal/notify"
	"order-fulfillment/internal/repository"
	"order-fulfillment/internal/server"
	"order-fulfillment/internal/telemetry"
	"order-fulfillment/internal/worker"
	"order-fulfillment/migrations"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// background holds everything that must stop after the HTTP server.
type background struct {
	stopSweeper    context.CancelFunc
	sweeperDone    <-chan struct{}
	dispatcher     *notify.Dispatcher
	redis          *redis.Client
	shutdownTracer func(context.Context) error
}

func gracefulShutdown(apiServer *server.Server, bg background, logger *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// The context is used to inform the server it has 30 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	bg.stopSweeper()
	<-bg.sweeperDone

	// Drain queued notifications before the broker connection goes away
	if err := bg.dispatcher.Close(ctx); err != nil {
		logger.Error("Notification dispatcher did not drain", zap.Error(err))
	}

	if err := bg.shutdownTracer(ctx); err != nil {
		logger.Error("Failed to flush traces", zap.Error(err))
	}

	if err := bg.redis.Close(); err != nil {
		logger.Error("Failed to close redis client", zap.Error(err))
	}

	// Close server resources
	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func newPublisher(cfg config.NotifyConfig, client *redis.Client, log *zap.Logger) notify.Publisher {
	switch cfg.Driver {
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			log.Warn("NOTIFY_DRIVER=kafka without KAFKA_BROKERS, falling back to log publisher")
			return notify.NewLogPublisher(log)
		}
		return notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case "log":
		return notify.NewLogPublisher(log)
	default:
		return notify.NewRedisPublisher(client)
	}
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting order fulfillment API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	shutdownTracer, err := telemetry.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer", zap.Error(err))
	}

	// Initialize database
	dbService, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}

	// Check database health
	health := dbService.Health()
	log.Info("Database health check", zap.Any("health", health))

	// Run migrations
	if err := database.RunMigrations(dbService.DB(), migrations.FS, ".", log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis unreachable at startup", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
	}
	cancelPing()

	dispatcher := notify.NewDispatcher(
		newPublisher(cfg.Notify, redisClient, logger.Component(log, "notify")),
		cfg.Notify.Buffer,
		logger.Component(log, "notify"),
	)
	dispatcher.Start()

	sweeper := worker.NewSweeper(
		repository.NewOrderRepository(dbService.DBx()),
		dispatcher,
		worker.SweeperConfig{ExpireAfter: cfg.Orders.ExpireAfter, Interval: cfg.Orders.SweepInterval},
		logger.Component(log, "sweeper"),
		worker.WithLock(redisClient),
	)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(sweepCtx)
	}()

	// Create server
	srv := server.NewServer(cfg, log, dbService, redisClient, dispatcher)

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(srv, background{
		stopSweeper:    stopSweeper,
		sweeperDone:    sweeperDone,
		dispatcher:     dispatcher,
		redis:          redisClient,
		shutdownTracer: shutdownTracer,
	}, log, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Info("Graceful shutdown complete")
}
