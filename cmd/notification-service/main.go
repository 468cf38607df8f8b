// cmd/notification-service/main.go
package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"freelance-lifecycle/internal/common/aws"
	"freelance-lifecycle/internal/common/config"
	"freelance-lifecycle/internal/common/database"
	"freelance-lifecycle/internal/common/errors"
	"freelance-lifecycle/internal/common/logger"
	"freelance-lifecycle/internal/common/middleware"
	"freelance-lifecycle/internal/common/observability"
	"freelance-lifecycle/internal/common/server"
	"freelance-lifecycle/internal/events"
	"freelance-lifecycle/internal/notification"
)

const serviceName = "notification-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{"service": serviceName})
	zapLog.Info("Starting notification service...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(serviceName)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = database.RetryWithBackoff(ctx, func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if err := pg.EnsureSchema(ctx, notification.SchemaStatements...); err != nil {
		zapLog.Fatal("schema bootstrap failed", zap.Error(err))
	}

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = database.RetryWithBackoff(ctx, func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	decoder, err := events.NewDefaultDecoder()
	if err != nil {
		zapLog.Fatal("event registry load failed", zap.Error(err))
	}

	service := notification.NewService(
		notification.NewPostgresStore(pg.DB),
		notification.NewUnreadCache(rdb.Client, config.GetDuration(cfg.Notifications.UnreadCacheTTL), log),
		decoder,
		obs,
		log,
	)

	// SNS is only needed to confirm HTTP subscriptions when events arrive by push.
	var snsClient *aws.SNSClient
	if cfg.Events.Driver == config.EventDriverSNS {
		snsClient, err = aws.NewSNSClient(ctx, cfg.Events.SNS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
	}

	// --- HTTP ---
	errs := errors.NewErrorHandler(log)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, errs, log)
	limiter.StartCleanup(ctx, time.Minute)

	srv := server.New(cfg.HTTP, serviceName, log,
		map[string]server.ReadinessCheck{
			"postgres": pg.Ping,
			"redis":    rdb.Ping,
		},
		middleware.RequestID(),
		middleware.RequestLogger(log),
		limiter.Handler(),
	)
	notification.NewHandler(service, snsClient, errs, log).RegisterRoutes(srv.Engine().Group("/api/v1/notifications"))

	var wg sync.WaitGroup

	// --- Stream consumer ---
	// drained under either driver
	consumer := events.NewStreamConsumer(rdb.Client, events.ConsumerConfigFrom(cfg.Events), decoder, service, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil {
			zapLog.Error("stream consumer stopped with error", zap.Error(err))
			stop()
		}
	}()
	zapLog.Info("Stream consumer started",
		zap.String("stream", cfg.Events.Stream),
		zap.String("group", cfg.Events.Group),
		zap.Int("workers", cfg.Events.Workers),
	)

	if err := srv.Run(ctx); err != nil {
		zapLog.Error("http server stopped with error", zap.Error(err))
		stop()
	}

	wg.Wait()
	zapLog.Info("Notification service stopped")
}
