// Package scoring grades LLM answers against reference answers and feeds
// the results to the cache service.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	ErrMissingFields = errors.New("scoring: question and answer are required")
	// ErrNoResult is returned by ResultStore.Latest when a question was never
	// scored.
	ErrNoResult = errors.New("scoring: no result recorded")
)

// Answerer produces an LLM answer for a question.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Result is one graded answer.
type Result struct {
	ID           int64     `json:"-"`
	Question     string    `json:"question"`
	AnswerYahoo  string    `json:"-"`
	AnswerLLM    string    `json:"answer_llm"`
	QualityScore float64   `json:"quality_score"`
	TimesQueried int       `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// ResultStore persists graded answers.
type ResultStore interface {
	Save(ctx context.Context, r Result) (Result, error)
	// Latest returns the newest result for question and bumps its query
	// counter.
	Latest(ctx context.Context, question string) (Result, error)
}

// CacheUpdater pushes a graded answer to the cache service.
type CacheUpdater interface {
	Update(ctx context.Context, r Result) error
}

// QueryResult answers a cache fallback lookup. QualityScore is nil for a
// fresh answer that was never graded.
type QueryResult struct {
	Question     string   `json:"question"`
	AnswerLLM    string   `json:"answer_llm"`
	QualityScore *float64 `json:"quality_score,omitempty"`
	Source       string   `json:"source"`
}

const (
	SourceHistory = "history"
	SourceLLM     = "llm"
)

// DefaultPushTimeout bounds the best-effort cache push after an evaluation.
const DefaultPushTimeout = 4 * time.Second

type Options struct {
	Store       ResultStore
	Cache       CacheUpdater
	PushTimeout time.Duration
	Logger      *zap.Logger
}

type Option func(*Options)

func WithResultStore(s ResultStore) Option {
	return func(o *Options) { o.Store = s }
}

func WithCacheUpdater(c CacheUpdater) Option {
	return func(o *Options) { o.Cache = c }
}

func WithPushTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.PushTimeout = d
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

// Service runs the evaluate pipeline: ask the LLM, grade the answer,
// persist it, then push it to the cache.
type Service struct {
	llm         Answerer
	store       ResultStore
	cache       CacheUpdater
	pushTimeout time.Duration
	logger      *zap.Logger
}

func NewService(llm Answerer, opts ...Option) (*Service, error) {
	if llm == nil {
		return nil, errors.New("scoring: answerer is required")
	}
	cfg := Options{PushTimeout: DefaultPushTimeout, Logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Service{
		llm:         llm,
		store:       cfg.Store,
		cache:       cfg.Cache,
		pushTimeout: cfg.PushTimeout,
		logger:      cfg.Logger,
	}, nil
}

// Evaluate grades the LLM's answer to question against the reference answer.
// Persistence failures fail the call; cache push failures are only logged.
func (s *Service) Evaluate(ctx context.Context, question, reference string) (Result, error) {
	if question == "" || reference == "" {
		return Result{}, ErrMissingFields
	}
	answer, err := s.llm.Answer(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("scoring: evaluate: %w", err)
	}
	res := Result{
		Question:     question,
		AnswerYahoo:  reference,
		AnswerLLM:    answer,
		QualityScore: Score(answer, reference),
		TimesQueried: 1,
	}
	if s.store != nil {
		if res, err = s.store.Save(ctx, res); err != nil {
			return Result{}, fmt.Errorf("scoring: evaluate: %w", err)
		}
	}
	s.push(ctx, res)
	return res, nil
}

// Answer returns the raw LLM answer.
func (s *Service) Answer(ctx context.Context, question string) (string, error) {
	if question == "" {
		return "", ErrMissingFields
	}
	return s.llm.Answer(ctx, question)
}

// Query returns the newest graded answer for question, or a fresh LLM answer
// when it was never graded.
func (s *Service) Query(ctx context.Context, question string) (QueryResult, error) {
	if question == "" {
		return QueryResult{}, ErrMissingFields
	}
	if s.store != nil {
		res, err := s.store.Latest(ctx, question)
		switch {
		case err == nil:
			score := res.QualityScore
			return QueryResult{
				Question:     res.Question,
				AnswerLLM:    res.AnswerLLM,
				QualityScore: &score,
				Source:       SourceHistory,
			}, nil
		case !errors.Is(err, ErrNoResult):
			return QueryResult{}, fmt.Errorf("scoring: query: %w", err)
		}
	}
	answer, err := s.llm.Answer(ctx, question)
	if err != nil {
		return QueryResult{}, fmt.Errorf("scoring: query: %w", err)
	}
	return QueryResult{Question: question, AnswerLLM: answer, Source: SourceLLM}, nil
}

func (s *Service) push(ctx context.Context, res Result) {
	if s.cache == nil {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.pushTimeout)
	defer cancel()
	if err := s.cache.Update(pushCtx, res); err != nil {
		s.logger.Warn("cache update failed", zap.String("question", res.Question), zap.Error(err))
		return
	}
	s.logger.Debug("cache updated", zap.String("question", res.Question))
}
