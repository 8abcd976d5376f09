package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cinevault/cinevault-backend/internal/cron"
	"github.com/cinevault/cinevault-backend/internal/notifications"
	"github.com/cinevault/cinevault-backend/internal/orders"
	"github.com/cinevault/cinevault-backend/internal/payments"
	"github.com/cinevault/cinevault-backend/internal/reconciler"
	"github.com/cinevault/cinevault-backend/internal/users"
	"github.com/cinevault/cinevault-backend/pkg/config"
	"github.com/cinevault/cinevault-backend/pkg/db"
	"github.com/cinevault/cinevault-backend/pkg/logger"
	"github.com/cinevault/cinevault-backend/pkg/metrics"
	"github.com/cinevault/cinevault-backend/pkg/migrate"
	"github.com/cinevault/cinevault-backend/pkg/redis"
	"github.com/cinevault/cinevault-backend/pkg/stripe"
)

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

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	orderRepo := orders.NewRepository(gormDB)
	paymentRepo := payments.NewRepository(gormDB)
	userRepo := users.NewRepository(gormDB)

	mailer, err := notifications.NewSMTPSender(cfg.Email, logg)
	var sender notifications.Sender = mailer
	if err != nil {
		logg.Warn(context.Background(), "smtp not configured, confirmations are logged only")
		sender = notifications.NewNoopSender(logg)
	}

	reconcilerService, err := reconciler.NewService(reconciler.ServiceParams{
		Payments:    paymentRepo,
		Orders:      orderRepo,
		Users:       userRepo,
		Mailer:      sender,
		Tx:          dbClient,
		Logger:      logg,
		MaxAttempts: cfg.Payments.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	tokenCleanup, err := cron.NewTokenCleanupJob(cron.TokenCleanupJobParams{
		Logger: logg,
		Users:  userRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create token cleanup job", err)
		os.Exit(1)
	}

	paymentReconcile, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:         logg,
		Payments:       paymentRepo,
		Gateway:        stripeClient,
		Reconciler:     reconcilerService,
		ReconcileAfter: cfg.Payments.ReconcileAfter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment reconcile job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(tokenCleanup, paymentReconcile),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
