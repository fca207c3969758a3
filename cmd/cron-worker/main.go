package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/morningmarket/morningmarket-backend/internal/cron"
	"github.com/morningmarket/morningmarket-backend/internal/orders"
	"github.com/morningmarket/morningmarket-backend/internal/reservations"
	"github.com/morningmarket/morningmarket-backend/internal/settlement"
	"github.com/morningmarket/morningmarket-backend/internal/users"
	"github.com/morningmarket/morningmarket-backend/pkg/config"
	"github.com/morningmarket/morningmarket-backend/pkg/db"
	"github.com/morningmarket/morningmarket-backend/pkg/geo"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
	"github.com/morningmarket/morningmarket-backend/pkg/metrics"
	"github.com/morningmarket/morningmarket-backend/pkg/migrate"
	"github.com/morningmarket/morningmarket-backend/pkg/paygate"
	"github.com/morningmarket/morningmarket-backend/pkg/redis"
)

const lockKeyFormat = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	usersRepo := users.NewRepository(dbClient.DB())
	reservationsRepo := reservations.NewRepository(dbClient.DB())
	reservationsService, err := reservations.NewService(reservationsRepo, usersRepo, dbClient, cfg.Store)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservations service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(
		settlement.NewRepository(dbClient.DB()),
		metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	gateway, err := paygate.NewClient(cfg.PayGate)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway client", err)
		os.Exit(1)
	}
	var geoClient *geo.Client
	if cfg.Geo.APIKey != "" {
		geoClient, err = geo.NewClient(cfg.Geo.APIKey, geo.WithBaseURL(cfg.Geo.BaseURL))
		if err != nil {
			logg.Error(context.Background(), "failed to create geo client", err)
			os.Exit(1)
		}
	}
	ordersService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		reservationsRepo,
		dbClient,
		gateway,
		orders.NewFeeCalculator(cfg.Store, geoClient),
		cfg.Store,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	noShowJob, err := cron.NewNoShowJob(cron.NoShowJobParams{
		Logger:  logg,
		Sweeper: reservationsService,
		Store:   cfg.Store,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create no-show job", err)
		os.Exit(1)
	}
	settlementJob, err := cron.NewSettlementJob(cron.SettlementJobParams{
		Logger:       logg,
		Runner:       settlementService,
		Store:        cfg.Store,
		LookbackDays: cfg.Cron.SettlementLookbackDay,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement job", err)
		os.Exit(1)
	}
	reconcileJob, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:      logg,
		Reconciler:  ordersService,
		GracePeriod: cfg.Cron.ReconcileGracePeriod,
		BatchSize:   cfg.Cron.ReconcileBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment reconcile job", err)
		os.Exit(1)
	}
	warnResetJob, err := cron.NewWarnResetJob(cron.WarnResetJobParams{
		Logger:   logg,
		Resetter: usersRepo,
		Guard:    redisClient,
		Store:    cfg.Store,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create warn reset job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), cfg.Cron.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(noShowJob, settlementJob, reconcileJob, warnResetJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
