package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/qacache/cache"
)

// DefaultMemoTTL is how long memoized answers are kept.
const DefaultMemoTTL = 24 * time.Hour

// Answerer is satisfied by Client and by Memo itself.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Memo remembers answers in a cache.Store so repeated questions skip the
// upstream call. Store errors degrade to a direct call.
type Memo struct {
	next   Answerer
	store  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewMemo(next Answerer, store cache.Store, ttl time.Duration, logger *zap.Logger) *Memo {
	if ttl <= 0 {
		ttl = DefaultMemoTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memo{next: next, store: store, ttl: ttl, logger: logger}
}

func (m *Memo) Answer(ctx context.Context, question string) (string, error) {
	cached, err := m.store.Get(ctx, question)
	switch {
	case err == nil:
		return string(cached), nil
	case !errors.Is(err, cache.ErrNotFound):
		m.logger.Warn("llm memo read failed", zap.Error(err))
	}

	answer, err := m.next.Answer(ctx, question)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return answer, nil
	}
	if err := m.store.Set(ctx, question, []byte(answer), m.ttl); err != nil {
		m.logger.Warn("llm memo write failed", zap.Error(err))
	}
	return answer, nil
}
