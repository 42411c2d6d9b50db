// Command trafficgen replays corpus questions against the cache service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/adeilh/qacache/config"
	"github.com/adeilh/qacache/db/sql/postgres"
	"github.com/adeilh/qacache/logging"
	"github.com/adeilh/qacache/traffic"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "trafficgen:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadTraffic(config.Env)
	if err != nil {
		return err
	}
	dist, err := traffic.ParseDistribution(cfg.Distribution)
	if err != nil {
		return err
	}
	logger, err := logging.New("trafficgen", cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	corpus, err := loadCorpus(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	logger.Info("corpus loaded", zap.Int("rows", len(corpus)))

	target, err := traffic.NewHTTPTarget(cfg.CacheServiceURL, cfg.ScorerURL, cfg.RequestTimeout)
	if err != nil {
		return err
	}
	gen, err := traffic.NewGenerator(corpus,
		traffic.NewSampler(dist, cfg.PoissonLambda, nil),
		target,
		traffic.WithRequestsPerMinute(cfg.RequestsPerMinute),
		traffic.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	logger.Info("emitting",
		zap.String("dist", string(dist)),
		zap.Int("rpm", cfg.RequestsPerMinute),
		zap.String("cache_service", cfg.CacheServiceURL),
		zap.String("scorer", cfg.ScorerURL),
	)
	err = gen.Run(ctx)
	c := gen.Counters()
	logger.Info("stopped",
		zap.Uint64("sent", c.Sent),
		zap.Uint64("hits", c.Hits),
		zap.Uint64("fallbacks", c.Fallbacks),
		zap.Uint64("evaluated", c.Evaluated),
		zap.Uint64("misses", c.Misses),
		zap.Uint64("failures", c.Failures),
	)
	return err
}

func loadCorpus(ctx context.Context, pg config.Postgres) ([]traffic.Pair, error) {
	db, err := postgres.Open(ctx,
		postgres.WithDSN(pg.DSN()),
		postgres.WithMaxOpenConns(pg.MaxClients),
	)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return postgres.NewCorpusRepository(db).Load(ctx)
}
