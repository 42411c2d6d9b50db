// Package service is the cache service facade: it derives keys from
// questions, validates updates, and routes reads through the fallback
// orchestrator. One Service is built at startup and handed to the HTTP
// handlers; it holds no global state.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/qacache/cache"
	"github.com/adeilh/qacache/fallback"
)

// KeyPrefix is prepended to the exact question text to form a cache key.
const KeyPrefix = "q:"

var (
	ErrValidation = errors.New("service: invalid request")
	ErrNotFound   = errors.New("service: not cached")
	ErrUpstream   = errors.New("service: upstream failure")
)

// ValidationError lists the required fields an update was missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "Missing fields: " + strings.Join(e.Missing, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Key derives the cache key for question. No normalization is applied.
func Key(question string) string { return KeyPrefix + question }

// UpdateRequest is the body producers send after scoring an answer.
type UpdateRequest struct {
	Question     string   `json:"question"`
	AnswerLLM    string   `json:"answer_llm"`
	QualityScore *float64 `json:"quality_score"`
	TTLSec       *float64 `json:"ttlSec,omitempty"`
}

// Validate reports every missing required field at once.
func (r UpdateRequest) Validate() error {
	var missing []string
	if r.Question == "" {
		missing = append(missing, "question")
	}
	if r.AnswerLLM == "" {
		missing = append(missing, "answer_llm")
	}
	if r.QualityScore == nil {
		missing = append(missing, "quality_score")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Payload is the value stored for a directly updated question.
type Payload struct {
	Question     string  `json:"question"`
	AnswerLLM    string  `json:"answer_llm"`
	QualityScore float64 `json:"quality_score"`
	StoredAt     int64   `json:"storedAt"`
}

type UpdateResult struct {
	OK  bool   `json:"ok"`
	Key string `json:"key"`
}

type GetResult struct {
	FromCache bool            `json:"fromCache"`
	Value     json.RawMessage `json:"value"`
}

// EntryView is the wire form of a cache entry. Timestamps are Unix
// milliseconds; a nil ExpiresAt means the entry never expires.
type EntryView struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt int64           `json:"createdAt"`
	ExpiresAt *int64          `json:"expiresAt"`
}

type Health struct {
	Status string `json:"status"`
	TS     int64  `json:"ts"`
}

type Options struct {
	Events EventLogger
	// EventBuffer bounds the number of pending event log writes.
	EventBuffer int
	Logger      *zap.Logger
	Now         func() time.Time
}

type Option func(*Options)

// WithEventLogger enables best-effort persistence of cache events.
func WithEventLogger(l EventLogger) Option {
	return func(o *Options) { o.Events = l }
}

func WithEventBuffer(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.EventBuffer = n
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

func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

type Service struct {
	store    *cache.Memory
	resolver *fallback.Orchestrator
	events   *eventQueue
	logger   *zap.Logger
	now      func() time.Time
}

// New wires the facade. A nil resolver disables the fallback path.
func New(store *cache.Memory, resolver *fallback.Orchestrator, opts ...Option) *Service {
	cfg := Options{EventBuffer: 256, Logger: zap.NewNop(), Now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if resolver == nil {
		resolver = fallback.New(store, nil)
	}
	s := &Service{
		store:    store,
		resolver: resolver,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if cfg.Events != nil {
		s.events = newEventQueue(cfg.Events, cfg.EventBuffer, cfg.Logger)
	}
	return s
}

// Close flushes pending event writes.
func (s *Service) Close() {
	if s.events != nil {
		s.events.close()
	}
}

// Update stores the scored answer under the question's key.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	if err := req.Validate(); err != nil {
		return UpdateResult{}, err
	}
	key := Key(req.Question)
	payload, err := json.Marshal(Payload{
		Question:     req.Question,
		AnswerLLM:    req.AnswerLLM,
		QualityScore: *req.QualityScore,
		StoredAt:     s.now().UnixMilli(),
	})
	if err != nil {
		return UpdateResult{}, fmt.Errorf("service: encode payload: %w", err)
	}
	s.store.Put(key, payload, cache.Seconds(req.TTLSec))
	s.emit(ctx, key, ActionUpdate)
	return UpdateResult{OK: true, Key: key}, nil
}

// Get serves question from the cache, falling back to the scorer on a miss.
// Like cache.Memory.Get it mutates recency and counters.
func (s *Service) Get(ctx context.Context, question string) (GetResult, error) {
	key := Key(question)
	res, err := s.resolver.Resolve(ctx, key, question)
	switch {
	case err == nil:
	case errors.Is(err, fallback.ErrNoFallback):
		return GetResult{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fallback.ErrUpstream):
		return GetResult{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	default:
		return GetResult{}, err
	}
	if !res.FromCache {
		s.emit(ctx, key, ActionFallback)
	}
	return GetResult{FromCache: res.FromCache, Value: res.Value}, nil
}

// Delete removes the question's record.
func (s *Service) Delete(ctx context.Context, question string) bool {
	key := Key(question)
	removed := s.store.Delete(key)
	if removed {
		s.emit(ctx, key, ActionDelete)
	}
	return removed
}

// Entries lists live records without purging expired ones.
func (s *Service) Entries() []EntryView {
	entries := s.store.Entries()
	out := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		view := EntryView{
			Key:       e.Key,
			Value:     json.RawMessage(e.Value),
			CreatedAt: e.CreatedAt.UnixMilli(),
		}
		if !e.ExpiresAt.IsZero() {
			ms := e.ExpiresAt.UnixMilli()
			view.ExpiresAt = &ms
		}
		out = append(out, view)
	}
	return out
}

func (s *Service) Stats() cache.Stats { return s.store.Stats() }

// ResetStats zeroes the counters and returns the fresh view.
func (s *Service) ResetStats(ctx context.Context) cache.Stats {
	s.store.ResetStats()
	s.emit(ctx, "", ActionResetStats)
	return s.store.Stats()
}

// Clear empties the store and its counters.
func (s *Service) Clear(ctx context.Context) int {
	n := s.store.Clear()
	s.emit(ctx, "", ActionClear)
	return n
}

func (s *Service) Health() Health {
	return Health{Status: "ok", TS: s.now().UnixMilli()}
}

// FallbackEnabled reports whether misses are resolved against a scorer.
func (s *Service) FallbackEnabled() bool { return s.resolver.Enabled() }

func (s *Service) emit(ctx context.Context, key string, action Action) {
	if s.events == nil {
		return
	}
	s.events.push(Event{Key: key, Action: action, At: s.now()})
}
