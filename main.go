package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tutorbook/config"
	"tutorbook/cron"
	"tutorbook/database"
	"tutorbook/database/memstore"
	"tutorbook/database/repository"
	"tutorbook/handlers"
	"tutorbook/middleware"
	"tutorbook/routes"
	"tutorbook/services/booking"
	"tutorbook/services/escrow"
	"tutorbook/services/notification"
	"tutorbook/services/payment"
	"tutorbook/services/slots"
	"tutorbook/services/tasks"
	"tutorbook/services/withdrawal"
	"tutorbook/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

func newPaymentProvider(logger *zap.Logger) payment.Provider {
	cfg := config.AppConfig
	switch cfg.PaymentProvider {
	case "stripe":
		stripe.Key = cfg.StripeKey
		return payment.NewStripeProvider(cfg.StripeWebhookSecret)
	case "hmac":
		return payment.NewHMACProvider(cfg.PaymentCheckoutURL, cfg.PaymentChecksumKey)
	case "sandbox":
		return payment.NewSandboxProvider(cfg.PaymentChecksumKey, cfg.PaymentCheckoutURL)
	default:
		logger.Sugar().Fatalf("main: unknown payment provider %q", cfg.PaymentProvider)
		return nil
	}
}

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	cfg := config.AppConfig
	policy := config.Policy()

	rootCtx, stopMonitors := context.WithCancel(context.Background())
	defer stopMonitors()

	// Storage and coordination. The memory driver runs without Mongo or
	// Redis and is meant for a single local process.
	var (
		store      *repository.Store
		locker     utils.Locker
		seen       payment.SeenCache
		scheduler  tasks.Scheduler
		taskClient *tasks.AsynqScheduler
		taskWorker *asynq.Server
	)
	scheduler = tasks.NoopScheduler{}
	checks := map[string]utils.HealthCheck{}
	useRedis := cfg.StoreDriver != "memory"
	if useRedis {
		database.InitDB()
		store = repository.NewMongoStore()
		if err := store.EnsureIndexes(); err != nil {
			logger.Sugar().Fatalf("main: failed to create indexes: %v", err)
		}
		locker = utils.NewRedisLocker(utils.GetLockClient())
		seen = payment.NewRedisSeenCache(utils.GetCacheClient())
		taskClient = tasks.NewAsynqScheduler(cron.TaskRedisOpt())
		scheduler = taskClient

		checks["mongo"] = func(ctx context.Context) error { return database.MongoClient.Ping(ctx, nil) }
		checks["redis"] = func(ctx context.Context) error { return utils.GetCacheClient().Ping(ctx).Err() }
	} else {
		logger.Warn("main: using in-memory store; data is lost on exit")
		store = memstore.NewStore()
		locker = utils.NewLocalLocker()
		seen = &payment.MemorySeenCache{}
	}

	// Notifications.
	var publisher notification.Publisher = notification.LogPublisher{Logger: logger}
	var amqpPublisher *notification.AMQPPublisher
	if cfg.RabbitMQURL != "" {
		amqpPublisher = notification.NewAMQPPublisher(cfg.RabbitMQURL, cfg.NotifyExchange)
		publisher = amqpPublisher
	}
	notifier := notification.NewDefaultNotificationService(publisher, logger)

	// services.
	slotService := slots.NewSlotService(store.Slots, store.Tx, policy, logger)
	ledger := escrow.NewLedger(store.Escrow, store.Tx, policy, logger)
	gateway := payment.NewGateway(newPaymentProvider(logger), store.Payments, seen,
		cfg.Currency, cfg.PaymentReturnURL, cfg.PaymentCancelURL, logger)
	bookingService := booking.NewBookingService(store, slotService, ledger, gateway,
		locker, scheduler, notifier, policy, logger)
	processor := withdrawal.NewProcessor(store.Withdrawals, store.Tx, ledger, locker, notifier, policy, logger)

	// Background work.
	if useRedis {
		taskWorker = cron.InitLifecycleWorker(bookingService, logger)
	}
	sweeper := cron.NewSweeper(bookingService, ledger, logger)
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		logger.Sugar().Fatalf("main: invalid sweep schedule %q: %v", cfg.SweepSchedule, err)
	}
	utils.StartHealthMonitor(rootCtx, time.Minute, checks)

	// Create the Gin router.
	gin.SetMode(gin.ReleaseMode)
	if !config.IsProduction() {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())

	handlerBundle := handlers.NewHandlerBundle(
		handlers.NewSlotHandler(slotService),
		handlers.NewBookingHandler(bookingService),
		handlers.NewPaymentHandler(gateway, bookingService, store.Payments),
		handlers.NewEscrowHandler(ledger),
		handlers.NewWithdrawalHandler(processor),
		handlers.NewAdminHandler(bookingService, ledger, processor),
	)
	limiters := routes.Limiters{
		API:     middleware.NewRateLimiter("api", cfg.MaxRequestsPerMin),
		Webhook: middleware.NewRateLimiter("webhook", cfg.MaxRequestsPerMin*5),
	}
	routes.RegisterRoutes(router, handlerBundle, limiters)

	// Start the HTTP server.
	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	sweeper.Stop()
	if taskWorker != nil {
		taskWorker.Shutdown()
	}
	if taskClient != nil {
		if err := taskClient.Close(); err != nil {
			logger.Warn("main: closing task client", zap.Error(err))
		}
	}
	notifier.Wait()
	if amqpPublisher != nil {
		if err := amqpPublisher.Close(); err != nil {
			logger.Warn("main: closing broker connection", zap.Error(err))
		}
	}
	stopMonitors()
	if database.MongoClient != nil {
		_ = database.MongoClient.Disconnect(ctx)
	}

	logger.Sugar().Info("main: server stopped gracefully")
	_ = logger.Sync()
}
