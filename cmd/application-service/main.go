// cmd/application-service/main.go
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"freelance-lifecycle/internal/application"
	"freelance-lifecycle/internal/common/config"
	"freelance-lifecycle/internal/common/database"
	"freelance-lifecycle/internal/common/errors"
	commonhttp "freelance-lifecycle/internal/common/http"
	"freelance-lifecycle/internal/common/logger"
	"freelance-lifecycle/internal/common/middleware"
	"freelance-lifecycle/internal/common/observability"
	"freelance-lifecycle/internal/common/server"
	"freelance-lifecycle/internal/events"
)

const serviceName = "application-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{"service": serviceName})
	zapLog.Info("Starting application service...", zap.String("environment", cfg.App.Environment))

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

	if err := pg.EnsureSchema(ctx, application.SchemaStatements...); err != nil {
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

	// --- Employer resolution ---
	var employers application.EmployerResolver
	switch cfg.Employer.Source {
	case config.EmployerSourceHTTP:
		employers = application.NewHTTPEmployerResolver(
			commonhttp.NewClient(config.GetDuration(cfg.Employer.Timeout)),
			cfg.Employer.BaseURL,
		)
	default:
		employers = application.NewPostgresEmployerResolver(pg.DB)
	}
	employers = application.NewCachedEmployerResolver(employers, rdb.Client, config.GetDuration(cfg.Employer.CacheTTL), log)

	// --- Event channel ---
	publisher, err := events.NewPublisher(ctx, cfg.Events, rdb.Client, log)
	if err != nil {
		zapLog.Fatal("event publisher init failed", zap.Error(err))
	}
	zapLog.Info("Event publisher ready", zap.String("driver", cfg.Events.Driver), zap.String("stream", cfg.Events.Stream))

	service := application.NewService(
		&application.Config{
			PublishTimeout: config.GetDuration(cfg.Events.PublishTimeout),
		},
		application.NewPostgresStore(pg.DB),
		employers,
		publisher,
		obs,
		log,
	)

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
	application.NewHandler(service, errs, log).RegisterRoutes(srv.Engine().Group("/api/v1/applications"))

	if err := srv.Run(ctx); err != nil {
		zapLog.Error("http server stopped with error", zap.Error(err))
	}
	zapLog.Info("Application service stopped")
}
