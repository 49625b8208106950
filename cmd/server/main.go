/**
 * @description
 * This is the main entry point for the API server. It initializes and wires
 * together all the components of the application: configuration, database
 * pool and migrations, Redis, the event producer, the provider clients, the
 * application services, and the HTTP router. Finally it starts the HTTP
 * server and shuts down gracefully on SIGINT/SIGTERM.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/reelforge/backend/internal/api"
	"github.com/reelforge/backend/internal/app"
	"github.com/reelforge/backend/internal/config"
	"github.com/reelforge/backend/internal/store"
	"github.com/reelforge/backend/pkg/paypalclient"
	"github.com/reelforge/backend/pkg/rabbitmq"
	"github.com/reelforge/backend/pkg/stripeclient"
)

// stripeInvoiceFetcher adapts the Stripe client to the neutral invoice shape
// the webhook service reconciles.
type stripeInvoiceFetcher struct {
	client *stripeclient.Client
}

func (f stripeInvoiceFetcher) GetInvoice(ctx context.Context, invoiceID string) (*app.InvoicePaid, error) {
	inv, err := f.client.FetchInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &app.InvoicePaid{
		Provider:       "stripe",
		PaymentID:      inv.ID,
		CustomerID:     inv.CustomerID,
		SubscriptionID: inv.SubscriptionID,
		PriceID:        inv.PriceID,
		Amount:         inv.AmountPaid,
		Currency:       inv.Currency,
		ReceiptURL:     inv.HostedInvoiceURL,
		Description:    "stripe invoice",
	}, nil
}

func main() {
	// Load .env for local development; ignored when absent.
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load application configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Run schema migrations before opening the pool.
	if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Establish the PostgreSQL pool.
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = 50
	poolCfg.MinConns = 5
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	// Simple protocol keeps the pool compatible with PgBouncer transaction
	// pooling.
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Event producer, with a logging fallback when the broker is down.
	var publisher rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, using fallback publisher", "error", err)
			publisher = &rabbitmq.EventProducerFallback{Logger: logger}
		} else {
			publisher = producer
		}
	} else {
		publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	}
	defer publisher.Close()

	// Provider clients.
	stripeClient := stripeclient.NewClient(cfg.StripeSecretKey)
	paypalClient := paypalclient.NewClient(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret, cfg.PayPalWebhookID)

	// Initialize application layers.
	repository := store.NewRepository(dbpool)
	authService := app.NewAuthService(repository, logger, cfg.JWTSecret, time.Duration(cfg.JWTExpiryHours)*time.Hour)
	subscriptionService := app.NewService(repository, stripeClient, paypalClient, publisher, logger, cfg.FrontendURL)
	webhookService := app.NewWebhookService(repository, stripeInvoiceFetcher{client: stripeClient}, publisher, logger)
	videoService := app.NewVideoService(repository, subscriptionService, logger)
	paymentService := app.NewPaymentService(repository)
	contactService := app.NewContactService(repository, publisher, logger)
	adminService := app.NewAdminService(repository, stripeClient, logger)

	handler := api.NewHandler(
		authService,
		subscriptionService,
		webhookService,
		videoService,
		paymentService,
		contactService,
		adminService,
		logger,
		cfg.StripeWebhookSecret,
		paypalClient,
	)
	router := api.NewRouter(handler, cfg.JWTSecret)

	// Embedded scheduler: the API process runs the jobs too, guarded by the
	// Redis lease so a dedicated scheduler deployment can take over.
	var locker app.Locker
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("unable to parse redis URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		locker = app.NewRedisLocker(redisClient, "reelforge:lock", time.Duration(cfg.SchedulerLockTTL)*time.Second)
	}
	jobs := app.NewJobs(repository, publisher, locker, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()
	defer scheduler.Stop()

	// Configure and start the HTTP server.
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
