package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/cinevault/cinevault-backend/api/middleware"
	"github.com/cinevault/cinevault-backend/api/routes"
	"github.com/cinevault/cinevault-backend/internal/cart"
	"github.com/cinevault/cinevault-backend/internal/movies"
	"github.com/cinevault/cinevault-backend/internal/notifications"
	"github.com/cinevault/cinevault-backend/internal/orders"
	"github.com/cinevault/cinevault-backend/internal/payments"
	"github.com/cinevault/cinevault-backend/internal/reconciler"
	"github.com/cinevault/cinevault-backend/internal/users"
	stripewebhook "github.com/cinevault/cinevault-backend/internal/webhooks/stripe"
	"github.com/cinevault/cinevault-backend/pkg/auth"
	"github.com/cinevault/cinevault-backend/pkg/config"
	"github.com/cinevault/cinevault-backend/pkg/db"
	"github.com/cinevault/cinevault-backend/pkg/logger"
	"github.com/cinevault/cinevault-backend/pkg/migrate"
	"github.com/cinevault/cinevault-backend/pkg/redis"
	"github.com/cinevault/cinevault-backend/pkg/stripe"
)

const shutdownGrace = 15 * time.Second

type jwtVerifier struct {
	cfg config.JWTConfig
}

func (v jwtVerifier) Verify(ctx context.Context, token string) (*middleware.Identity, error) {
	claims, err := auth.ParseAccessToken(v.cfg, token)
	if err != nil {
		return nil, err
	}
	return &middleware.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	movieRepo := movies.NewRepository(gormDB)
	cartRepo := cart.NewRepository(gormDB)
	orderRepo := orders.NewRepository(gormDB)
	paymentRepo := payments.NewRepository(gormDB)
	userRepo := users.NewRepository(gormDB)

	catalogService, err := movies.NewService(movieRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cartRepo, dbClient, catalogService, orderRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orderRepo, cartRepo, movieRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(paymentRepo, orderRepo, userRepo, stripeClient, dbClient, cfg.Payments, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	mailer, err := notifications.NewSMTPSender(cfg.Email, logg)
	if err != nil {
		logg.Warn(context.Background(), "smtp not configured, confirmations are logged only")
	}
	var sender notifications.Sender = mailer
	if mailer == nil {
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

	webhookService, err := stripewebhook.NewService(reconcilerService)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Stripe.WebhookEventTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(
		cfg,
		logg,
		dbClient,
		redisClient,
		jwtVerifier{cfg: cfg.JWT},
		catalogService,
		cartService,
		orderService,
		paymentService,
		stripeClient,
		webhookService,
		webhookGuard,
	)

	addr := ":" + cfg.App.Port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}
}
