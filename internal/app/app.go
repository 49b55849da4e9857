// Package app wires configuration, storage, domain services, and the HTTP
// server into a runnable storefront.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/shukshop/storefront/internal/domain/cart"
	"github.com/shukshop/storefront/internal/domain/coupon"
	"github.com/shukshop/storefront/internal/domain/order"
	"github.com/shukshop/storefront/internal/handler"
	"github.com/shukshop/storefront/internal/notify"
	"github.com/shukshop/storefront/internal/paypal"
	"github.com/shukshop/storefront/internal/repository"
	"github.com/shukshop/storefront/pkg/health"
	"github.com/shukshop/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pricingCfg, err := cfg.Pricing.Domain()
	if err != nil {
		return errors.Wrap(err, "pricing config")
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReady("postgres", 5*time.Second, health.Ping(pool))
	healthSvc.AddLive("goroutines", time.Second, health.GoroutineCount(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	categoryRepo := repository.NewCategoryRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Payment verification.
	verifier, err := paypal.NewClient(cfg.PayPal.ClientConfig())
	if err != nil {
		return errors.Wrap(err, "create paypal client")
	}

	// Notifiers are optional; each is enabled by its own configuration.
	var notifiers []order.Notifier
	if cfg.SMTP.MailConfig().Enabled() {
		mailer, err := notify.NewMailer(cfg.SMTP.MailConfig())
		if err != nil {
			return errors.Wrap(err, "create mailer")
		}
		notifiers = append(notifiers, mailer)
		lg.Info("Order e-mails enabled", zap.String("host", cfg.SMTP.Host))
	}
	if cfg.AMQP.URL != "" {
		publisher, err := notify.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			return errors.Wrap(err, "create amqp publisher")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close amqp publisher", zap.Error(err))
			}
		}()
		notifiers = append(notifiers, publisher)
		lg.Info("Order events enabled", zap.String("queue", cfg.AMQP.Queue))
	}

	// Domain services.
	cartService := cart.NewService(cartRepo, productRepo)
	resolver := coupon.NewRepoResolver(couponRepo)
	orderService := order.NewService(
		cartService, productRepo, resolver, orderRepo, verifier, notifiers, pricingCfg, lg.Named("order"),
	)

	// HTTP handlers.
	security := handler.NewSecurity(apikeyRepo, []byte(cfg.APIKeyPepper))
	h := handler.NewHandler(
		handler.Config{
			ImageBaseURL:        cfg.ImageBaseURL,
			AddToCartCooldown:   cfg.Cooldown.AddToCart,
			ApplyCouponCooldown: cfg.Cooldown.ApplyCoupon,
			CheckoutCooldown:    cfg.Cooldown.Checkout,
		},
		productRepo, categoryRepo, couponRepo,
		cartService, orderService, orderRepo,
		security,
	)

	cooldowns := httpmiddleware.NewCooldownLimiter(handler.SessionKeyFunc)
	cooldowns.StartCleanup(ctx, time.Minute, 10*time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.HandleLive)
	mux.HandleFunc("/readyz", healthSvc.HandleReady)
	h.Routes(mux, cooldowns)

	instrumented := otelhttp.NewHandler(mux, "storefront",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, handler.SessionHeader},
				ExposeHeaders:    []string{handler.SessionHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
