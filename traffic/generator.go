package traffic

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/adeilh/qacache/httpx"
)

// Outcome of sending one question.
type Outcome int

const (
	// OutcomeHit means the cache answered from memory.
	OutcomeHit Outcome = iota
	// OutcomeFallback means the cache answered through its own fallback.
	OutcomeFallback
	// OutcomeEvaluated means the cache missed and the scorer graded the pair.
	OutcomeEvaluated
	// OutcomeMiss means the cache missed and no scorer was configured.
	OutcomeMiss
)

// Target is where generated questions go.
type Target interface {
	Send(ctx context.Context, p Pair) (Outcome, error)
}

// Counters summarizes a run.
type Counters struct {
	Sent      uint64 `json:"sent"`
	Hits      uint64 `json:"hits"`
	Fallbacks uint64 `json:"fallbacks"`
	Evaluated uint64 `json:"evaluated"`
	Misses    uint64 `json:"misses"`
	Failures  uint64 `json:"failures"`
}

type Options struct {
	RequestsPerMinute int
	Logger            *zap.Logger
}

type Option func(*Options)

// DefaultRequestsPerMinute paces ticks when no rate is given.
const DefaultRequestsPerMinute = 300

func WithRequestsPerMinute(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.RequestsPerMinute = n
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

// Generator emits one tick at a time; a slow tick delays the next one
// instead of overlapping it.
type Generator struct {
	corpus  []Pair
	sampler *Sampler
	target  Target
	limiter *rate.Limiter
	logger  *zap.Logger

	sent, hits, fallbacks, evaluated, misses, failures atomic.Uint64
}

func NewGenerator(corpus []Pair, sampler *Sampler, target Target, opts ...Option) (*Generator, error) {
	if sampler == nil || target == nil {
		return nil, errors.New("traffic: sampler and target are required")
	}
	cfg := Options{RequestsPerMinute: DefaultRequestsPerMinute, Logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	return &Generator{
		corpus:  corpus,
		sampler: sampler,
		target:  target,
		limiter: rate.NewLimiter(perSecond, 1),
		logger:  cfg.Logger,
	}, nil
}

// Run ticks until ctx is done. It returns nil on cancellation.
func (g *Generator) Run(ctx context.Context) error {
	if len(g.corpus) == 0 {
		return errors.New("traffic: corpus is empty")
	}
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			// Wait also fails early when the next token lies past the
			// deadline; either way the run is over.
			<-ctx.Done()
			return nil
		}
		g.Tick(ctx)
	}
}

// Tick samples and sends one batch sequentially.
func (g *Generator) Tick(ctx context.Context) {
	for _, idx := range g.sampler.Next(len(g.corpus)) {
		if ctx.Err() != nil {
			return
		}
		g.send(ctx, g.corpus[idx])
	}
}

func (g *Generator) send(ctx context.Context, p Pair) {
	g.sent.Add(1)
	out, err := g.target.Send(ctx, p)
	if err != nil {
		g.failures.Add(1)
		g.logger.Warn("traffic send failed", zap.String("question", truncate(p.Question, 60)), zap.Error(err))
		return
	}
	switch out {
	case OutcomeHit:
		g.hits.Add(1)
	case OutcomeFallback:
		g.fallbacks.Add(1)
	case OutcomeEvaluated:
		g.evaluated.Add(1)
	case OutcomeMiss:
		g.misses.Add(1)
	}
	g.logger.Debug("traffic sent", zap.String("question", truncate(p.Question, 60)), zap.Int("outcome", int(out)))
}

func (g *Generator) Counters() Counters {
	return Counters{
		Sent:      g.sent.Load(),
		Hits:      g.hits.Load(),
		Fallbacks: g.fallbacks.Load(),
		Evaluated: g.evaluated.Load(),
		Misses:    g.misses.Load(),
		Failures:  g.failures.Load(),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// HTTPTarget asks the cache first and, on a miss, has the scorer grade the
// pair so the cache is populated for next time.
type HTTPTarget struct {
	cache  *httpx.Client
	scorer *httpx.Client
}

// NewHTTPTarget builds a target. An empty scorerURL disables evaluation.
func NewHTTPTarget(cacheURL, scorerURL string, timeout time.Duration) (*HTTPTarget, error) {
	if cacheURL == "" {
		return nil, errors.New("traffic: cache service URL is required")
	}
	t := &HTTPTarget{cache: httpx.NewClient(httpx.WithBaseURL(cacheURL), httpx.WithClientTimeout(timeout))}
	if scorerURL != "" {
		t.scorer = httpx.NewClient(httpx.WithBaseURL(scorerURL), httpx.WithClientTimeout(timeout))
	}
	return t, nil
}

type lookupResponse struct {
	FromCache bool `json:"fromCache"`
}

type evaluateRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (t *HTTPTarget) Send(ctx context.Context, p Pair) (Outcome, error) {
	var res lookupResponse
	_, err := t.cache.Get(ctx, "/get/{question}", &res, httpx.WithPathParams(map[string]string{"question": p.Question}))
	if err == nil {
		if res.FromCache {
			return OutcomeHit, nil
		}
		return OutcomeFallback, nil
	}
	switch httpx.StatusCode(err) {
	case httpx.StatusNotFound, httpx.StatusBadGateway:
	default:
		return 0, fmt.Errorf("traffic: cache lookup: %w", err)
	}
	if t.scorer == nil {
		return OutcomeMiss, nil
	}
	if _, err := t.scorer.Post(ctx, "/evaluate", evaluateRequest{Question: p.Question, Answer: p.Answer}, nil); err != nil {
		return 0, fmt.Errorf("traffic: evaluate: %w", err)
	}
	return OutcomeEvaluated, nil
}
