// Package main is the entry point for the Syllabuksu review server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/FallSteph/Syllabuksu/internal/capability"
	"github.com/FallSteph/Syllabuksu/internal/config"
	"github.com/FallSteph/Syllabuksu/internal/database"
	"github.com/FallSteph/Syllabuksu/internal/directory"
	"github.com/FallSteph/Syllabuksu/internal/idempotency"
	"github.com/FallSteph/Syllabuksu/internal/notification"
	"github.com/FallSteph/Syllabuksu/internal/observability"
	"github.com/FallSteph/Syllabuksu/internal/transport"
	"github.com/FallSteph/Syllabuksu/internal/workflow"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

// stores groups the persistence backends selected by storage.driver.
type stores struct {
	users         directory.UserStore
	syllabi       workflow.SyllabusStore
	notifications notification.Store
	health        observability.HealthChecker
	close         func()
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "", "path to an optional YAML configuration file")
	envFile := flag.String("env-file", ".env", "path to an optional .env file")
	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	flag.Parse()

	// Step 2: Load configuration.
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, observability.ServiceName, version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	registry := prometheus.NewRegistry()
	metrics := observability.InitMetrics(registry)

	// Step 4: Open storage.
	st, err := buildStores(ctx, cfg.Storage, *migrateOnly, logger)
	if err != nil {
		logger.Error("storage initialization failed", zap.Error(err))
		return 1
	}
	defer st.close()
	if *migrateOnly {
		logger.Info("migrations applied")
		return 0
	}
	if path := cfg.Storage.SeedUsersFile; path != "" {
		users, err := directory.LoadSeedFile(path)
		if err != nil {
			logger.Error("seed users load failed", zap.Error(err))
			return 1
		}
		created, err := directory.Seed(ctx, st.users, users, logger)
		if err != nil {
			logger.Error("seeding users failed", zap.Error(err))
			return 1
		}
		logger.Info("seed users applied", zap.Int("created", created), zap.Int("listed", len(users)))
	}

	// Step 5: Initialize capability resolver.
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
	if err != nil {
		logger.Error("capability policy load failed", zap.Error(err))
		return 1
	}
	capResolver := capability.NewResolver(evaluator, cfg.Capability.Cache.TTL).
		WithMaxEntries(cfg.Capability.Cache.MaxEntries).
		WithMetrics(metrics)

	// Step 6: Initialize idempotency store (optional).
	idemStore, idemHealth, idemClose, err := buildIdempotencyStore(cfg.Idempotency, logger)
	if err != nil {
		logger.Error("idempotency store initialization failed", zap.Error(err))
		return 1
	}
	if idemClose != nil {
		defer idemClose()
	}

	// Step 7: Build notification delivery and the workflow engine.
	mailer, err := notification.NewMailer(cfg.Notification.Email, logger)
	if err != nil {
		logger.Error("mailer initialization failed", zap.Error(err))
		return 1
	}
	dispatcher := notification.NewDispatcher(st.notifications, st.users, mailer,
		notification.WithLogger(logger),
		notification.WithMetrics(metrics),
		notification.WithSubjectPrefix(cfg.Notification.Email.SubjectPrefix),
		notification.WithSendTimeout(cfg.Notification.Email.SendTimeout),
	)

	table := workflow.NewTable(workflow.TableOptions{
		CITLDirectApprove:      cfg.Workflow.CITLDirectApprove,
		MinReturnCommentLength: cfg.Workflow.MinReturnCommentLength,
	})
	engine := workflow.NewEngine(table, st.syllabi, st.users, dispatcher,
		workflow.WithLogger(logger),
		workflow.WithMetrics(metrics),
	)

	// Step 8: Build HTTP router.
	keys, err := transport.NewKeySource(cfg.Identity, logger)
	if err != nil {
		logger.Error("token verification setup failed", zap.Error(err))
		return 1
	}

	readiness := observability.ReadinessChecks{
		PolicyLoaded:     evaluator.Loaded,
		Database:         st.health,
		IdempotencyStore: idemHealth,
	}
	if hc, ok := mailer.(observability.HealthChecker); ok {
		readiness.Mailer = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Logger:             logger,
		Metrics:            metrics,
		Authenticate:       transport.JWTAuthenticator(cfg.Identity, keys),
		CapabilityResolver: capResolver,
		Engine:             engine,
		Users:              st.users,
		Notifications:      st.notifications,
		Idempotency:        idemStore,
		Readiness:          readiness,
		MetricsHandler:     observability.HandlerFor(registry),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 9: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("email_provider", mailer.Name()),
		zap.Bool("citl_direct_approve", cfg.Workflow.CITLDirectApprove),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Let queued emails finish.
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("pending email deliveries abandoned", zap.Error(err))
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildStores opens the persistence backends for cfg.Driver. Postgres
// schemas are migrated when cfg.MigrateOnStart or force is set.
func buildStores(ctx context.Context, cfg config.StorageConfig, force bool, logger *zap.Logger) (stores, error) {
	switch cfg.Driver {
	case "memory", "":
		if force {
			return stores{}, errors.New("migrations require storage.driver postgres")
		}
		logger.Warn("using in-memory storage, data is lost on restart")
		return stores{
			users:         directory.NewMemoryUserStore(),
			syllabi:       workflow.NewMemorySyllabusStore(),
			notifications: notification.NewMemoryStore(),
			close:         func() {},
		}, nil
	case "postgres":
		pool, err := database.Open(ctx, cfg)
		if err != nil {
			return stores{}, err
		}
		if cfg.MigrateOnStart || force {
			if err := database.Migrate(ctx, pool); err != nil {
				pool.Close()
				return stores{}, err
			}
		}
		return pgStores(pool), nil
	default:
		return stores{}, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
	}
}

func pgStores(pool *pgxpool.Pool) stores {
	return stores{
		users:         directory.NewPgUserStore(pool),
		syllabi:       workflow.NewPgSyllabusStore(pool),
		notifications: notification.NewPgStore(pool),
		health:        observability.HealthCheckFunc(database.HealthCheck(pool)),
		close:         pool.Close,
	}
}

// buildIdempotencyStore creates the idempotency store based on config. It
// returns a nil store when idempotency is disabled.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (idempotency.Store, observability.HealthChecker, func(), error) {
	if !cfg.Enabled {
		return nil, nil, nil, nil
	}

	switch cfg.Store.Driver {
	case "memory", "":
		logger.Info("using in-memory idempotency store")
		return idempotency.NewMemoryStore(), nil, nil, nil
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{cfg.Store.Addr()},
			DB:    cfg.Store.DB,
		})
		store := idempotency.NewRedisStore(client)
		logger.Info("using redis idempotency store", zap.Int("db", cfg.Store.DB))
		closer := func() {
			if err := store.Close(); err != nil {
				logger.Warn("redis close failed", zap.Error(err))
			}
		}
		return store, store, closer, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported idempotency store driver: %q", cfg.Store.Driver)
	}
}
