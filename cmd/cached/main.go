// Command cached runs the question/answer cache service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/adeilh/qacache/api"
	"github.com/adeilh/qacache/auth"
	"github.com/adeilh/qacache/cache"
	"github.com/adeilh/qacache/config"
	"github.com/adeilh/qacache/db/sql/postgres"
	"github.com/adeilh/qacache/fallback"
	"github.com/adeilh/qacache/httpx"
	"github.com/adeilh/qacache/logging"
	"github.com/adeilh/qacache/metrics"
	"github.com/adeilh/qacache/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cached:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadCache(config.Env)
	if err != nil {
		return err
	}
	logger, err := logging.New("cached", cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.New()
	store := cache.New(
		cache.WithCapacity(cfg.MaxItems),
		cache.WithDefaultTTL(cfg.TTL),
		cache.WithSweepInterval(cfg.SweepInterval),
		cache.WithLogger(logger.Named("cache")),
	)
	defer func() { _ = store.Close() }()
	if err := collector.RegisterCache(store); err != nil {
		return fmt.Errorf("register cache metrics: %w", err)
	}

	var scorer fallback.Scorer
	if cfg.ScoreServiceURL != "" {
		s, err := fallback.NewHTTPScorer(cfg.ScoreServiceURL, cfg.FallbackTimeout)
		if err != nil {
			return err
		}
		scorer = s
	} else {
		logger.Info("no SCORE_SERVICE_URL configured, misses return 404")
	}
	resolver := fallback.New(store, scorer,
		fallback.WithTimeout(cfg.FallbackTimeout),
		fallback.WithTTL(cfg.FallbackTTL),
		fallback.WithLogger(logger.Named("fallback")),
		fallback.WithObserver(collector),
	)

	svcOpts := []service.Option{service.WithLogger(logger.Named("service"))}
	if cfg.EventLog {
		db, err := postgres.Connect(ctx, true,
			postgres.WithDSN(cfg.Postgres.DSN()),
			postgres.WithMaxOpenConns(cfg.Postgres.MaxClients),
			postgres.WithConnMaxIdleTime(cfg.Postgres.IdleTime),
		)
		if err != nil {
			return err
		}
		defer db.Close()
		svcOpts = append(svcOpts, service.WithEventLogger(postgres.NewEventRepository(db)))
	}
	svc := service.New(store, resolver, svcOpts...)
	defer svc.Close()

	routeOpts := []api.CacheOption{api.WithMetrics(collector.Handler()), api.WithLogger(logger)}
	if cfg.AdminTokenHash != "" {
		verifier, err := auth.NewBcryptVerifier(cfg.AdminTokenHash, "admin")
		if err != nil {
			return err
		}
		mw, err := auth.NewMiddleware(verifier)
		if err != nil {
			return err
		}
		routeOpts = append(routeOpts, api.WithAdmin(httpx.AuthMiddleware(mw)))
	} else {
		logger.Warn("CACHE_ADMIN_TOKEN_HASH not set, admin routes are unprotected")
	}

	server := httpx.NewServer(
		httpx.WithAddress(config.Addr(cfg.Port)),
		httpx.WithLogger(logger.Named("http")),
		httpx.WithObserver(collector),
	)
	server.RegisterRoutes(api.CacheRoutes(svc, routeOpts...))

	logger.Info("cache service starting",
		zap.Int("port", cfg.Port),
		zap.Int("capacity", cfg.MaxItems),
		zap.Duration("ttl", cfg.TTL),
		zap.Bool("fallback", resolver.Enabled()),
		zap.Bool("event_log", cfg.EventLog),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("cache service stopped")
	return nil
}
