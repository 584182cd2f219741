package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"algodid/internal/ledger/algod"
	"algodid/internal/ledger/simulated"
	"algodid/internal/platform/config"
	"algodid/internal/platform/httpserver"
	"algodid/internal/platform/logger"
	"algodid/internal/platform/metrics"
	"algodid/internal/platform/middleware"
	redisclient "algodid/internal/platform/redis"
	ratelimitmetrics "algodid/internal/ratelimit/metrics"
	ratelimit "algodid/internal/ratelimit/middleware"
	"algodid/internal/ratelimit/models"
	"algodid/internal/ratelimit/ports"
	"algodid/internal/ratelimit/store/bucket"
	"algodid/internal/registry"
	registryhandler "algodid/internal/registry/handler"
	registrymetrics "algodid/internal/registry/metrics"
	registryports "algodid/internal/registry/ports"
	audit "algodid/pkg/platform/audit"
	"algodid/pkg/platform/audit/publisher"
	auditmemory "algodid/pkg/platform/audit/store/memory"
	auditpostgres "algodid/pkg/platform/audit/store/postgres"
	"algodid/pkg/platform/httputil"
)

// ledger is what the server needs from either backend.
type ledger interface {
	registryports.Ledger
	Health(ctx context.Context) error
}

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ldg, err := buildLedger(cfg, log)
	if err != nil {
		return err
	}

	auditStore, closeAudit, err := buildAuditStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAudit()
	pub := publisher.NewPublisher(auditStore, publisher.WithAsyncBuffer(256), publisher.WithLogger(log))
	defer pub.Close()

	limiter, closeLimiter, err := buildRateLimiter(ctx, cfg, log, pub, reg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	svc := registry.NewService(ldg,
		registry.WithLogger(log),
		registry.WithAuditPublisher(pub),
		registry.WithMetrics(registrymetrics.New(reg)),
		registry.WithTracer(otel.Tracer("algodid/registry")),
		registry.WithConfirmation(cfg.ConfirmationRounds, cfg.ConfirmationTimeout),
		registry.WithReadRetry(uint64(cfg.ReadRetryAttempts), cfg.ReadRetryBackoff),
	)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.Logger(log))
	router.Use(metrics.New(reg).Instrument)

	router.Get("/healthz", healthHandler(ldg))
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	registryhandler.New(svc, log,
		registryhandler.WithDefaultAppID(cfg.DefaultApp),
		registryhandler.WithRateLimiter(limiter),
		registryhandler.WithEventLister(pub),
		registryhandler.WithTimeout(cfg.RequestTimeout),
	).Register(router)

	srv := httpserver.New(cfg.Addr, router, cfg.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting algodid",
			"addr", cfg.Addr,
			"ledger", cfg.Ledger,
			"default_app_id", cfg.DefaultApp,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildLedger(cfg config.Server, log *slog.Logger) (ledger, error) {
	switch cfg.Ledger {
	case config.LedgerAlgod:
		client, err := algod.New(cfg.AlgodURL, cfg.AlgodToken,
			algod.WithLogger(log),
			algod.WithTracer(otel.Tracer("algodid/ledger")),
		)
		if err != nil {
			return nil, fmt.Errorf("algod client: %w", err)
		}
		return client, nil
	default:
		log.Warn("using simulated ledger; documents are not persisted", "apps", cfg.SimulatedApps)
		return simulated.New(simulated.WithLogger(log), simulated.WithApplications(cfg.SimulatedApps...)), nil
	}
}

func buildAuditStore(ctx context.Context, cfg config.Server, log *slog.Logger) (audit.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Info("audit events kept in memory")
		return auditmemory.NewInMemoryStore(), func() {}, nil
	}
	db, err := auditpostgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	store := auditpostgres.New(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}

func buildRateLimiter(ctx context.Context, cfg config.Server, log *slog.Logger, pub ports.AuditPublisher, reg prometheus.Registerer) (*ratelimit.Middleware, func(), error) {
	var (
		store   ports.BucketStore = bucket.NewInMemoryBucketStore()
		closeFn                   = func() {}
	)
	if cfg.Redis.URL != "" && !cfg.RateLimit.Disabled {
		client, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		store = bucket.NewRedis(client.Client)
		closeFn = func() { _ = client.Close() }
		log.Info("rate limiting backed by redis")
	}

	mw := ratelimit.New(store, log,
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		ratelimit.WithAuditPublisher(pub),
		ratelimit.WithMetrics(ratelimitmetrics.New(reg)),
		ratelimit.WithLimit(models.ClassWrite, models.Limit{RequestsPerWindow: cfg.RateLimit.WritePerMin, Window: time.Minute}),
		ratelimit.WithLimit(models.ClassRead, models.Limit{RequestsPerWindow: cfg.RateLimit.ReadPerMin, Window: time.Minute}),
	)
	return mw, closeFn, nil
}

type healthResponse struct {
	Status string `json:"status"`
	Ledger string `json:"ledger"`
	Error  string `json:"error,omitempty"`
}

func healthHandler(l ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := l.Health(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Ledger: "unavailable", Error: err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Ledger: "ok"})
	}
}
