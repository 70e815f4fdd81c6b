package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/krishna-marketing/grocer/internal/domain/cart"
	"github.com/krishna-marketing/grocer/internal/domain/catalog"
	"github.com/krishna-marketing/grocer/internal/domain/coupon"
	"github.com/krishna-marketing/grocer/internal/domain/customer"
	"github.com/krishna-marketing/grocer/internal/domain/delivery"
	"github.com/krishna-marketing/grocer/internal/domain/loyalty"
	"github.com/krishna-marketing/grocer/internal/domain/order"
	"github.com/krishna-marketing/grocer/internal/handler"
	"github.com/krishna-marketing/grocer/internal/notify"
	"github.com/krishna-marketing/grocer/internal/storage/postgres"
	"github.com/krishna-marketing/grocer/pkg/health"
	"github.com/krishna-marketing/grocer/pkg/httpmiddleware"
)

const serviceName = "grocer-api"

// Run creates all dependencies, starts the HTTP server and the mail workers,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseConns)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	tx := postgres.NewTransactor(pool)
	products := postgres.NewProductRepository(pool)
	categories := postgres.NewCategoryRepository(pool)
	carts := postgres.NewCartRepository(pool)
	coupons := postgres.NewCouponRepository(pool)
	customers := postgres.NewCustomerRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	agents := postgres.NewAgentRepository(pool)
	points := postgres.NewLoyaltyRepository(pool)
	apikeys := postgres.NewAPIKeyRepository(pool)

	// Notifications.
	customerSvc := customer.NewService(customers, tx)
	hub := notify.NewHub(cfg.Events.Buffer)
	outbox := notify.NewOutbox(newMailer(cfg.Mail), customerSvc, lg.Named("mail"), notify.OutboxConfig{
		Workers:   cfg.Mail.Workers,
		QueueSize: cfg.Mail.QueueSize,
		Timeout:   cfg.Mail.Timeout,
	})
	notifier := notify.NewNotifier(hub, outbox)

	// Domain services.
	catalogSvc := catalog.NewService(products, categories)
	couponSvc := coupon.NewService(coupons)
	cartSvc := cart.NewService(carts, products, couponSvc, tx)
	ledger := loyalty.NewLedger(points)
	orderSvc, err := order.NewService(order.Deps{
		Orders:    orders,
		Carts:     carts,
		Inventory: products,
		Addresses: customers,
		Coupons:   couponSvc,
		Ledger:    ledger,
		Notifier:  notifier,
		Tx:        tx,
		Meter:     m.MeterProvider().Meter("github.com/krishna-marketing/grocer/internal/domain/order"),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	deliverySvc := delivery.NewService(agents, orderSvc, customers, notifier, tx)

	// Health checks.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("mail_queue", time.Second,
		health.BacklogCheck(outbox.Backlog, cfg.Mail.QueueSize*9/10),
		health.WithFailureThreshold(6),
	)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP handlers.
	h := handler.NewHandler(handler.Config{
		ImageBaseURL:   cfg.ImageBaseURL,
		JWTSecret:      []byte(cfg.JWTSecret),
		APIKeyPepper:   []byte(cfg.APIKeyPepper),
		RequestTimeout: cfg.RequestTimeout,
		Heartbeat:      cfg.Events.Heartbeat,
	}, handler.Deps{
		Catalog:   catalogSvc,
		Carts:     cartSvc,
		Coupons:   couponSvc,
		Customers: customerSvc,
		Orders:    orderSvc,
		Delivery:  deliverySvc,
		Loyalty:   ledger,
		Events:    hub,
		APIKeys:   apikeys,
	})

	// Router: health endpoints + API routes on one server.
	mux := chi.NewRouter()
	mux.Get("/livez", healthSvc.LiveEndpoint)
	mux.Get("/readyz", healthSvc.ReadyEndpoint)
	mux.Mount("/api", h.Routes())

	server := newServer(cfg.Addr, httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Skip:   isProbe,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument(serviceName, m),
		httpmiddleware.LogRequests(),
	))

	// Mail outlives the server so messages queued by in-flight requests are
	// still sent.
	mailCtx, stopMail := context.WithCancel(context.WithoutCancel(ctx))
	defer stopMail()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return outbox.Run(mailCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		stopMail()
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// newServer bounds only header reads. ReadTimeout and WriteTimeout stay
// unset because either deadline ends order event streams; every other route
// is bounded by the handler's request timeout.
func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz"
}

func newMailer(cfg MailConfig) notify.Mailer {
	from := notify.Sender{Name: cfg.FromName, Address: cfg.From}
	switch cfg.Provider {
	case "sendgrid":
		return notify.NewSendGridMailer(cfg.APIKey, from)
	case "postmark":
		return notify.NewPostmarkMailer(cfg.APIKey, from)
	default:
		return notify.LogMailer{}
	}
}
