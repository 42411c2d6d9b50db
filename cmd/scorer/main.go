// Command scorer runs the scoring service: it asks the LLM, grades the
// answer against the corpus reference, stores the result and pushes it to
// the cache service.
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

	"go.uber.org/zap"

	"github.com/adeilh/qacache/api"
	"github.com/adeilh/qacache/cache"
	"github.com/adeilh/qacache/cache/redis"
	"github.com/adeilh/qacache/config"
	"github.com/adeilh/qacache/db/sql/postgres"
	"github.com/adeilh/qacache/httpx"
	"github.com/adeilh/qacache/llm"
	"github.com/adeilh/qacache/logging"
	"github.com/adeilh/qacache/metrics"
	"github.com/adeilh/qacache/scoring"
)

const memoCapacity = 10000

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "scorer:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadScorer(config.Env)
	if err != nil {
		return err
	}
	logger, err := logging.New("scorer", cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.Migrate,
		postgres.WithDSN(cfg.Postgres.DSN()),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxClients),
		postgres.WithConnMaxIdleTime(cfg.Postgres.IdleTime),
	)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database ready")

	client, err := llm.NewClient(llm.Options{
		BaseURL:   cfg.OpenAIBaseURL,
		APIKey:    cfg.OpenAIKey,
		Model:     cfg.OpenAIModel,
		MaxTokens: cfg.OpenAIMaxTokens,
		System:    cfg.SystemPrompt,
		Logger:    logger.Named("llm"),
	})
	if err != nil {
		return err
	}

	memoStore, closeMemo := openMemoStore(ctx, cfg, logger)
	defer closeMemo()
	answerer := llm.NewMemo(client, memoStore, cfg.MemoTTL, logger.Named("memo"))

	updater, err := scoring.NewHTTPCacheUpdater(cfg.CacheServiceURL)
	if err != nil {
		return err
	}
	svc, err := scoring.NewService(answerer,
		scoring.WithResultStore(postgres.NewScoreRepository(db)),
		scoring.WithCacheUpdater(updater),
		scoring.WithLogger(logger.Named("scoring")),
	)
	if err != nil {
		return err
	}

	collector := metrics.New(metrics.WithSubsystem("scorer"))
	server := httpx.NewServer(
		httpx.WithAddress(config.Addr(cfg.Port)),
		httpx.WithLogger(logger.Named("http")),
		httpx.WithObserver(collector),
		httpx.WithTimeouts(15*time.Second, 60*time.Second),
	)
	server.RegisterRoutes(api.ScorerRoutes(svc, logger))
	server.RegisterRoutes(func(a *httpx.App) { a.Mount(http.MethodGet, "/metrics", collector.Handler()) })

	logger.Info("score service starting",
		zap.Int("port", cfg.Port),
		zap.String("model", cfg.OpenAIModel),
		zap.String("cache_service", cfg.CacheServiceURL),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("score service stopped")
	return nil
}

// openMemoStore prefers Redis when configured and reachable, otherwise an
// in-process cache.
func openMemoStore(ctx context.Context, cfg config.Scorer, logger *zap.Logger) (cache.Store, func()) {
	if cfg.RedisAddr != "" {
		rs := redis.NewStore(redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, KeyPrefix: "llm:"})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rs.Ping(pingCtx)
		cancel()
		if err == nil {
			logger.Info("llm memo backed by redis", zap.String("addr", cfg.RedisAddr))
			return rs, func() { _ = rs.Close() }
		}
		_ = rs.Close()
		logger.Warn("redis unavailable, using in-process llm memo", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	mem := cache.New(cache.WithCapacity(memoCapacity), cache.WithLogger(logger.Named("memo")))
	return mem.AsStore(), func() { _ = mem.Close() }
}
