package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/delivery-admin/internal/audit"
	"github.com/xenking/delivery-admin/internal/domain/order"
	"github.com/xenking/delivery-admin/internal/event"
	"github.com/xenking/delivery-admin/internal/handler"
	"github.com/xenking/delivery-admin/internal/notify"
	"github.com/xenking/delivery-admin/internal/storage/postgres"
	"github.com/xenking/delivery-admin/internal/tracking"
	"github.com/xenking/delivery-admin/internal/uow"
	"github.com/xenking/delivery-admin/pkg/health"
	"github.com/xenking/delivery-admin/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis tracking read model.
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	tracker := tracking.NewStore(rdb, cfg.Redis.KeyPrefix, cfg.Redis.TrackingTTL)

	// RabbitMQ fan-out.
	broker, err := notify.Dial(cfg.AMQP.URL)
	if err != nil {
		return errors.Wrap(err, "connect amqp")
	}
	defer func() { _ = broker.Close() }()
	notifier, err := notify.New(broker.Channel(), cfg.AMQP.Exchange)
	if err != nil {
		return errors.Wrap(err, "create notifier")
	}

	// Event handlers, in delivery order. Registration is closed once the bus
	// is built.
	reg := event.NewRegistry()
	order.RegisterChangeHandler(reg, "audit", audit.Log)
	order.RegisterChangeHandler(reg, "tracking", tracker.Record)
	order.RegisterChangeHandler(reg, "notify", notifier.Notify)
	bus, err := event.NewBus(reg,
		event.WithTracerProvider(m.TracerProvider()),
		event.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create event bus")
	}
	for kind, n := range reg.Kinds() {
		lg.Debug("Event handlers registered", zap.String("kind", string(kind)), zap.Int("handlers", n))
	}

	// Domain services.
	orderService := order.NewService(
		postgres.NewCatalogRepository(pool),
		postgres.NewOrderRepository(pool),
		uow.New(postgres.NewCommitter(pool)),
		bus,
	)
	h := handler.NewHandler(orderService, tracker, postgres.NewAPIKeyRepository(pool), []byte(cfg.APIKeyPepper))

	// Health checks.
	healthSvc := health.New()
	healthSvc.Add(health.Check{Name: "postgres", Probe: health.Readiness, Timeout: 5 * time.Second, Func: health.PingCheck(pool)})
	healthSvc.Add(health.Check{Name: "redis", Probe: health.Readiness, Timeout: 2 * time.Second, Func: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}})
	healthSvc.Add(health.Check{Name: "amqp", Probe: health.Readiness, Func: broker.Check})
	healthSvc.Add(health.Check{Name: "goroutines", Probe: health.Liveness, Func: health.GoroutineCountCheck(cfg.Health.GoroutineThreshold)})

	router := chi.NewRouter()
	router.Use(httpmiddleware.LogRequests())
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api", h.Routes(
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: handler.RateLimitKey,
		}),
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(router,
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.Recovery(),
				httpmiddleware.CORS(httpmiddleware.CORSConfig{
					AllowOrigins:     cfg.CORS.Origins,
					AllowHeaders:     []string{"Content-Type", "Authorization", handler.HeaderAPIKey, httpmiddleware.HeaderRequestID},
					ExposeHeaders:    []string{httpmiddleware.HeaderRequestID, "Location", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
					AllowCredentials: cfg.CORS.AllowCredentials,
					MaxAge:           86400,
				}),
				httpmiddleware.RequestID(),
			),
			"delivery-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(gctx, cfg.Health.Interval)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	healthSvc.SetReady(true)

	return g.Wait()
}
