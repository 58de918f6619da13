package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	accountapp "github.com/openbilling/backend/internal/application/account"
	billingapp "github.com/openbilling/backend/internal/application/billing"
	entitlementapp "github.com/openbilling/backend/internal/application/entitlement"
	promoapp "github.com/openbilling/backend/internal/application/promo"
	"github.com/openbilling/backend/internal/infrastructure/cache"
	"github.com/openbilling/backend/internal/infrastructure/config"
	"github.com/openbilling/backend/internal/infrastructure/email"
	"github.com/openbilling/backend/internal/infrastructure/event"
	"github.com/openbilling/backend/internal/infrastructure/logger"
	"github.com/openbilling/backend/internal/infrastructure/payment"
	"github.com/openbilling/backend/internal/infrastructure/persistence"
	"github.com/openbilling/backend/internal/interfaces/http/handler"
	"github.com/openbilling/backend/internal/interfaces/http/middleware"
	"github.com/openbilling/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting billing engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port))

	// Database with a zap-backed gorm logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Repositories and transaction manager
	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	planRepo := persistence.NewGormPlanRepository(db.DB)
	promoRepo := persistence.NewGormPromoCodeRepository(db.DB)
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	ledgerRepo := persistence.NewGormProcessedEventRepository(db.DB)
	grantRepo := persistence.NewGormGrantRepository(db.DB)
	limitRepo := persistence.NewGormUsageLimitRepository(db.DB)
	txManager := persistence.NewGormTxManager(db.DB)

	// Idempotency fast-path: redis when reachable, in-memory otherwise. The
	// durable ledger dedupes either way.
	storeFactory := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log))
	idempotencyStore, err := storeFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// In-process event bus for domain event fan-out
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewAuditLogHandler(log))
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Payment and mail adapters
	stripeAdapter, err := payment.NewStripeAdapter(cfg.Stripe, log)
	if err != nil {
		log.Fatal("Failed to create Stripe adapter", zap.Error(err))
	}
	mailSender, err := email.NewSMTPSender(cfg.SMTP, log)
	if err != nil {
		log.Fatal("Failed to create mail sender", zap.Error(err))
	}

	// Application services
	reconciler := billingapp.NewReconciler(billingapp.ReconcilerConfig{
		Subscriptions: subscriptionRepo,
		Invoices:      invoiceRepo,
		Ledger:        ledgerRepo,
		Customers:     customerRepo,
		Plans:         planRepo,
		Promos:        promoRepo,
		Grants:        grantRepo,
		Limits:        limitRepo,
		TxManager:     txManager,
		Idempotency:   idempotencyStore,
		Email:         mailSender,
		EventBus:      eventBus,
		Logger:        log,
	})
	promoResolver := promoapp.NewResolver(promoapp.ResolverConfig{
		Promos:    promoRepo,
		Customers: customerRepo,
		Invoices:  invoiceRepo,
		Logger:    log,
	})
	checkoutService := billingapp.NewCheckoutService(billingapp.CheckoutServiceConfig{
		Customers:     customerRepo,
		Plans:         planRepo,
		Subscriptions: subscriptionRepo,
		Resolver:      promoResolver,
		Payments:      stripeAdapter,
		Provider:      payment.ProviderName,
		Logger:        log,
	})
	evaluator := entitlementapp.NewEvaluator(entitlementapp.EvaluatorConfig{
		Grants: grantRepo,
		Limits: limitRepo,
		Logger: log,
	})
	customerService := accountapp.NewCustomerService(accountapp.CustomerServiceConfig{
		Customers: customerRepo,
		EventBus:  eventBus,
		Logger:    log,
	})

	// HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Failed to set trusted proxies", zap.Error(err))
	}
	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewWebhookHandler(stripeAdapter, reconciler, log))
	r.Register(handler.NewCheckoutHandler(checkoutService))
	r.Register(handler.NewCustomerHandler(customerService))
	r.Register(handler.NewEntitlementHandler(evaluator))
	r.Register(handler.NewPromoHandler(promoResolver))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Cancel-at-period-end expiry job
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	if cfg.Jobs.ExpireCancellationsEnabled {
		go expireCancellationsLoop(jobCtx, reconciler, subscriptionRepo, cfg.Jobs.ExpireCancellationsInterval, log)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")
	cancelJobs()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

// expireCancellationsLoop periodically sweeps subscriptions flagged
// cancel-at-period-end whose period has elapsed.
func expireCancellationsLoop(ctx context.Context, reconciler *billingapp.Reconciler, subs *persistence.GormSubscriptionRepository, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expireDueCancellations(ctx, reconciler, subs, log)
		}
	}
}

func expireDueCancellations(ctx context.Context, reconciler *billingapp.Reconciler, subs *persistence.GormSubscriptionRepository, log *zap.Logger) {
	now := time.Now()
	due, err := subs.FindDueCancellations(ctx, now, 100)
	if err != nil {
		log.Error("Failed to find due cancellations", zap.Error(err))
		return
	}

	for i := range due {
		sub := &due[i]
		expired, err := reconciler.ExpireDueCancellations(ctx, sub, now)
		if err != nil {
			log.Error("Failed to expire subscription",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err))
			continue
		}
		if expired {
			log.Info("Expired cancel-at-period-end subscription",
				zap.String("subscription_id", sub.ID.String()))
		}
	}
}
