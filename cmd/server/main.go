// Package main is the entry point for the finance API.
// It initializes all dependencies, sets up the HTTP server,
// and starts the background sweeps.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sayan/internal/config"
	"sayan/internal/handlers"
	"sayan/internal/jobs"
	applog "sayan/internal/logger"
	"sayan/internal/metrics"
	"sayan/internal/middleware"
	"sayan/internal/repositories"
	"sayan/internal/repositories/cache"
	"sayan/internal/routes"
	"sayan/internal/services/bankaccount"
	"sayan/internal/services/coupon"
	"sayan/internal/services/notification"
	"sayan/internal/services/payment"
	"sayan/internal/services/payout"
	"sayan/internal/services/referral"
	"sayan/internal/services/settings"
	"sayan/internal/services/wallet"
	"sayan/internal/services/withdrawal"
	"sayan/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	settingsTTL     = time.Minute
	shutdownTimeout = 30 * time.Second
)

// main performs the following setup:
// - Loads configuration
// - Initializes database, cache and event bus connections
// - Wires the finance services
// - Configures routes and cron jobs
// - Starts the HTTP server and shuts down on SIGINT/SIGTERM
func main() {
	config.LoadEnv()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLogger := applog.NewZapLogger(cfg.App.LogFile, config.IsProduction())
	defer appLogger.Sync()

	db, err := repositories.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database instance: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	appLogger.Info("main", "connected to database", map[string]interface{}{
		"host":           cfg.Database.Host,
		"max_open_conns": cfg.Database.MaxOpenConns,
	})

	redisClient := cache.NewRedisClient(&cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	cacheService := cache.NewCacheService(redisClient, cfg.Redis.BalanceTTL)
	defer cacheService.Close()

	ctx := context.Background()
	if err := cacheService.HealthCheck(ctx); err != nil {
		// Balances fall back to the database on every cache error.
		appLogger.Warn("main", "redis unavailable, balance cache degraded", map[string]interface{}{"error": err})
	}

	var publisher notification.Publisher = notification.NewLogPublisher(appLogger)
	if cfg.Nats.Enabled {
		natsPublisher, err := notification.NewNatsPublisher(cfg.Nats.URL, appLogger)
		if err != nil {
			appLogger.Warn("main", "nats unavailable, events go to the log", map[string]interface{}{"error": err})
		} else {
			defer natsPublisher.Close()
			publisher = natsPublisher
		}
	}
	notifier := notification.NewService(publisher, appLogger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(registry)

	sealer, err := utils.NewSealer(cfg.Crypto.BankAccountKey)
	if err != nil {
		log.Fatalf("Invalid BANK_ACCOUNT_KEY: %v", err)
	}

	store := repositories.NewStore(db)
	settingsService := settings.NewService(store, settingsTTL, appLogger)

	walletService := wallet.NewService(
		store,
		cacheService,
		settingsService,
		notifier,
		appLogger,
		wallet.WalletConfig{BalanceCacheTTL: cfg.Redis.BalanceTTL},
		collector,
	)
	accountService := bankaccount.NewService(store, sealer, appLogger)
	gateway := newPayoutGateway(cfg.Payouts, appLogger)
	withdrawalService := withdrawal.NewService(
		store,
		walletService,
		accountService,
		gateway,
		settingsService,
		notifier,
		appLogger,
		withdrawal.Config{
			PayoutTimeout: cfg.Payouts.Timeout,
			StaleAfter:    cfg.Payouts.StaleAfter,
			Metrics:       collector,
		},
	)
	couponService := coupon.NewService(store, appLogger)
	referralService := referral.NewService(store, walletService, settingsService, notifier, appLogger)
	paymentService := payment.NewService(
		store,
		walletService,
		couponService,
		referralService,
		settingsService,
		notifier,
		appLogger,
		collector,
		payment.Config{
			Gateway:       cfg.Payments.Gateway,
			WebhookSecret: cfg.Payments.WebhookSecret,
		},
	)
	if cfg.Payments.WebhookSecret == "" {
		appLogger.Warn("main", "PAYMENT_WEBHOOK_SECRET unset, payment webhooks will be rejected", nil)
	}
	if cfg.Payouts.WebhookSecret == "" {
		appLogger.Warn("main", "PAYOUT_WEBHOOK_SECRET unset, payout webhooks will be rejected", nil)
	}

	runner := jobs.NewRunner(referralService, withdrawalService, walletService, appLogger)
	if err := runner.Register(jobs.Schedule{
		ReferralSweep:  cfg.Jobs.ReferralSweep,
		PayoutSweep:    cfg.Jobs.PayoutSweep,
		ReconcileSweep: cfg.Jobs.ReconcileSweep,
	}); err != nil {
		log.Fatalf("Invalid cron schedule: %v", err)
	}
	runner.Start()

	app := fiber.New(fiber.Config{
		AppName:      "Sayan Finance",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Payouts.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Use("/api/withdrawals", limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	}))

	routes.SetupRoutes(app, routes.Handlers{
		Health:     handlers.NewHealthHandler(sqlDB, cacheService),
		Wallet:     handlers.NewWalletHandler(walletService),
		Withdrawal: handlers.NewWithdrawalHandler(withdrawalService, accountService),
		Payment:    handlers.NewPaymentHandler(paymentService, couponService),
		Webhook:    handlers.NewWebhookHandler(paymentService, gateway, withdrawalService, appLogger),
		Admin:      handlers.NewAdminHandler(walletService, withdrawalService, referralService, settingsService),
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, appLogger))

	go func() {
		if err := app.Listen(":" + cfg.App.Port); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()
	appLogger.Info("main", "server started", map[string]interface{}{
		"port":   cfg.App.Port,
		"payout": gateway.Name(),
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Error("main", "server shutdown failed", map[string]interface{}{"error": err})
	}
	runner.Stop(shutdownCtx)
	appLogger.Info("main", "server stopped", nil)
}

func newPayoutGateway(cfg config.PayoutsConfig, log applog.Logger) payout.Gateway {
	if cfg.StripeKey == "" {
		log.Warn("main", "no payout provider configured, using manual payouts", nil)
		return payout.NewManualGateway(cfg.WebhookSecret)
	}
	return payout.NewStripeGateway(payout.StripeConfig{
		SecretKey:     cfg.StripeKey,
		WebhookSecret: cfg.WebhookSecret,
		MaxRetries:    int64(cfg.MaxRetries),
	})
}
