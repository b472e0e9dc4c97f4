package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/okian/codesync/internal/adapters/http/api"
	"github.com/okian/codesync/internal/adapters/http/swagger"
	"github.com/okian/codesync/internal/adapters/platforms"
	"github.com/okian/codesync/internal/adapters/repository"
	app "github.com/okian/codesync/internal/app"
	"github.com/okian/codesync/internal/config"
	"github.com/okian/codesync/internal/domain/types"
	"github.com/okian/codesync/pkg/logger"
	"github.com/okian/codesync/pkg/tracing"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 2 * time.Minute
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	adapterBurst      = 2
)

var version = "dev"

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logOpts := []logger.Option{logger.WithLevel(cfg.LogLevel)}
	if cfg.LogFile != "" {
		logOpts = append(logOpts, logger.WithFile(cfg.LogFile))
	}
	if err := logger.Init(logOpts...); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "codesync exited with error", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// run wires every component from cfg and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	shutdownTracing, err := tracing.Init(ctx, cfg.TracingEnabled,
		tracing.WithServiceName("codesync"),
		tracing.WithVersion(version),
		tracing.WithOTLPEndpoint(cfg.TracingEndpoint, true),
	)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn(ctx, "tracing shutdown", logger.Error(err))
		}
	}()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry, err := buildPlatforms(cfg)
	if err != nil {
		return err
	}

	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithPlatforms(registry),
		app.WithScoreTTL(cfg.ScoreTTL),
		app.WithPlatformConcurrency(cfg.PlatformConcurrency),
		app.WithBatchSize(cfg.BatchSize),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithRefreshSchedule(cfg.RefreshCron),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		svc.Stop(sctx)
	}()

	srv := newHTTPServer(ctx, cfg, svc)
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// buildStore opens the configured document store, optionally fronted by the
// Redis score cache. The returned func releases its connections.
func buildStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	var (
		base    repository.Store
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Store {
	case config.StorePostgres:
		pool, err := repository.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		pg := repository.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		base = pg
	default:
		base = repository.NewMemoryStore()
	}

	if cfg.RedisURL == "" {
		return base, closeAll, nil
	}
	rdb, err := repository.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("open redis: %w", err)
	}
	closers = append(closers, func() { _ = rdb.Close() })
	return repository.WithScoreStore(base, repository.NewRedisScoreCache(base, rdb)), closeAll, nil
}

// buildPlatforms registers an HTTP adapter for every configured platform.
func buildPlatforms(cfg *config.Config) (*platforms.Registry, error) {
	client := &http.Client{
		Timeout:   cfg.AdapterTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	reg := platforms.NewRegistry(platforms.WithTimeout(cfg.AdapterTimeout))
	for name, tmpl := range cfg.AdapterURLs {
		p, err := types.ParsePlatform(name)
		if err != nil {
			return nil, fmt.Errorf("adapter_urls: %w", err)
		}
		reg.Register(p, platforms.NewHTTPAdapter(tmpl,
			platforms.WithHTTPClient(client),
			platforms.WithRateLimit(cfg.AdapterRateLimit, adapterBurst),
			platforms.WithUserAgent("codesync/"+version),
		))
	}
	return reg, nil
}

// newHTTPServer registers the API routes for svc.
func newHTTPServer(ctx context.Context, cfg *config.Config, svc *app.Service) *http.Server {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, cfg.MaxLeaderboardLimit).Register(ctx, mux)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(mux),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
