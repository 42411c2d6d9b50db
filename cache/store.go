package cache

import (
	"context"
	"time"
)

// memoryStore adapts Memory to the byte-oriented Store interface.
type memoryStore struct{ m *Memory }

// AsStore exposes m through the Store interface so callers that only need a
// TTL byte cache can run without an external backend.
func (m *Memory) AsStore() Store { return memoryStore{m: m} }

func (s memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	v, ok := s.m.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.m.Put(key, value, After(ttl))
	return nil
}

func (s memoryStore) Delete(ctx context.Context, key string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if !s.m.Delete(key) {
		return ErrNotFound
	}
	return nil
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
