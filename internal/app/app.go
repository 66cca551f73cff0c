// Package app wires the discount service together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/promo-engine/gen/oas"
	"github.com/xenking/promo-engine/internal/catalog"
	"github.com/xenking/promo-engine/internal/domain/discount"
	"github.com/xenking/promo-engine/internal/domain/evaluation"
	"github.com/xenking/promo-engine/internal/handler"
	"github.com/xenking/promo-engine/internal/storage/postgres"
	"github.com/xenking/promo-engine/pkg/health"
	"github.com/xenking/promo-engine/pkg/httpmiddleware"
)

// Run builds the catalog, starts the HTTP server and handles graceful
// shutdown.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	healthSvc := newHealth()

	src, closeSrc, err := openSource(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeSrc()

	rules, err := catalog.Build(ctx, src)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}
	policy, err := cfg.Catalog.Policy()
	if err != nil {
		return err
	}
	lg.Info("Catalog loaded",
		zap.Int("rules", rules.Len()),
		zap.Stringer("noop_policy", policy),
	)

	engine := discount.New(rules, discount.WithNoopTotalPolicy(policy))
	svc, err := evaluation.NewService(engine, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create evaluation service")
	}

	healthSvc.AddReadinessCheck("catalog", time.Second, func(context.Context) error {
		if engine.Catalog().Len() == 0 {
			return catalog.ErrNoRules
		}
		return nil
	})
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)
	lg.Info("Health checks started",
		zap.Strings("liveness", healthSvc.LivenessChecks()),
		zap.Strings("readiness", healthSvc.ReadinessChecks()),
	)

	router, err := NewRouter(zctx.From(ctx), healthSvc, svc, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			router,
			"discount-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

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

// maxBodySize bounds API request bodies.
const maxBodySize = 1 << 20

// newHealth registers the process liveness checks.
func newHealth() *health.Health {
	h := health.New()
	h.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	h.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	return h
}

// NewRouter mounts the health probes at the root and the ogen API server
// under /api/v1.
func NewRouter(
	lg *zap.Logger,
	healthSvc *health.Health,
	svc handler.Evaluator,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (http.Handler, error) {
	api, err := oas.NewServer(handler.New(svc),
		oas.WithPathPrefix("/api/v1"),
		oas.WithTracerProvider(tp),
		oas.WithMeterProvider(mp),
		oas.WithErrorHandler(handler.ErrorHandler),
		oas.WithNotFound(handler.NotFound),
		oas.WithMethodNotAllowed(handler.MethodNotAllowed),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create oas server")
	}

	r := chi.NewRouter()
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Handle("/api/v1/*", api)

	return httpmiddleware.Wrap(r,
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.LogRequests(),
		httpmiddleware.Recovery(),
		httpmiddleware.LimitBody(maxBodySize),
	), nil
}

// openSource picks the rule source: PostgreSQL when a database URL is set,
// otherwise the configured files, otherwise the built-in rules.
func openSource(ctx context.Context, lg *zap.Logger, cfg *Config, healthSvc *health.Health) (catalog.Source, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create db pool")
		}
		if cfg.Migrate {
			if err := postgres.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, errors.Wrap(err, "run migrations")
			}
		}
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
		lg.Info("Using database rule source")
		return postgres.NewRuleRepository(pool), pool.Close, nil
	case len(cfg.Catalog.Files) > 0:
		lg.Info("Using file rule source", zap.Strings("files", cfg.Catalog.Files))
		return catalog.Files(cfg.Catalog.Files), func() {}, nil
	default:
		lg.Info("Using built-in rules")
		return catalog.Static(discount.DefaultRules()), func() {}, nil
	}
}
