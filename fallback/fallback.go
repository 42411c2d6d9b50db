// Package fallback resolves cache misses against the scoring service and
// repopulates the cache with a short TTL.
package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/qacache/cache"
)

const (
	DefaultTimeout = 3 * time.Second
	DefaultTTL     = 60 * time.Second
)

var (
	// ErrNoFallback reports a miss with no scorer configured.
	ErrNoFallback = errors.New("fallback: not cached and no scorer configured")
	// ErrUpstream matches every *UpstreamError via errors.Is.
	ErrUpstream = errors.New("fallback: upstream scorer failed")
)

// UpstreamError wraps a failed scorer call. The cache is never modified when
// one is returned.
type UpstreamError struct {
	Question string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("fallback: scorer query failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Scorer answers a question the cache could not.
type Scorer interface {
	Query(ctx context.Context, question string) (json.RawMessage, error)
}

// Store is the subset of cache.Memory the orchestrator needs.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte, ttl cache.TTL)
}

// Observer is notified after every scorer call.
type Observer interface {
	ObserveFallback(outcome string, elapsed time.Duration)
}

// Outcome labels passed to Observer.
const (
	OutcomeOK       = "ok"
	OutcomeUpstream = "upstream_error"
	OutcomeInvalid  = "invalid_payload"
)

// Result is what Resolve hands back on success.
type Result struct {
	FromCache bool
	Value     json.RawMessage
}

type Options struct {
	Timeout  time.Duration
	TTL      time.Duration
	Logger   *zap.Logger
	Observer Observer
}

type Option func(*Options)

// WithTimeout bounds each scorer call.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithTTL sets the TTL of records sourced from the scorer. It is independent
// of the TTL callers pass on direct updates.
func WithTTL(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.TTL = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Options) { o.Observer = obs }
}

// Orchestrator serves reads from the store and falls back to a Scorer on a
// miss. A nil scorer disables the fallback.
type Orchestrator struct {
	store   Store
	scorer  Scorer
	timeout time.Duration
	ttl     time.Duration
	logger  *zap.Logger
	obs     Observer
}

func New(store Store, scorer Scorer, opts ...Option) *Orchestrator {
	cfg := Options{Timeout: DefaultTimeout, TTL: DefaultTTL, Logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Orchestrator{
		store:   store,
		scorer:  scorer,
		timeout: cfg.Timeout,
		ttl:     cfg.TTL,
		logger:  cfg.Logger,
		obs:     cfg.Observer,
	}
}

// Enabled reports whether a scorer is configured.
func (o *Orchestrator) Enabled() bool { return o.scorer != nil }

// TTL returns the TTL applied to scorer-sourced records.
func (o *Orchestrator) TTL() time.Duration { return o.ttl }

// Resolve looks key up and, on a miss, asks the scorer about question. The
// scorer call runs outside any store lock; its answer is stored afterwards
// in a separate Put.
func (o *Orchestrator) Resolve(ctx context.Context, key, question string) (Result, error) {
	if v, ok := o.store.Get(key); ok {
		return Result{FromCache: true, Value: v}, nil
	}
	if o.scorer == nil {
		return Result{}, ErrNoFallback
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	value, err := o.scorer.Query(callCtx, question)
	elapsed := time.Since(start)
	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeUpstream
	case !json.Valid(value):
		outcome = OutcomeInvalid
		err = errors.New("scorer returned invalid JSON")
	}
	o.observe(outcome, elapsed)
	if err != nil {
		o.logger.Warn("fallback scorer failed",
			zap.String("key", key),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return Result{}, &UpstreamError{Question: question, Err: err}
	}

	o.store.Put(key, value, cache.After(o.ttl))
	o.logger.Debug("fallback cached", zap.String("key", key), zap.Duration("ttl", o.ttl))
	return Result{FromCache: false, Value: value}, nil
}

func (o *Orchestrator) observe(outcome string, elapsed time.Duration) {
	if o.obs != nil {
		o.obs.ObserveFallback(outcome, elapsed)
	}
}
