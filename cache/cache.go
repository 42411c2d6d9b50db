package cache

import (
	"context"
	"errors"
	"math"
	"time"
)

var ErrNotFound = errors.New("cache: key not found")

// Store represents a simple TTL-based byte cache that can be backed by the
// in-process Memory store, Redis, or any other KV store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TTL selects how long a record put into Memory lives. The zero value means
// "use the store's default TTL".
type TTL struct {
	d   time.Duration
	set bool
}

var (
	// DefaultTTL applies the store's configured default.
	DefaultTTL = TTL{}
	// NoExpiry keeps the record until it is deleted or evicted.
	NoExpiry = TTL{set: true}
)

// After returns a TTL of d. Non-positive durations mean NoExpiry.
func After(d time.Duration) TTL {
	if d <= 0 {
		return NoExpiry
	}
	return TTL{d: d, set: true}
}

// Seconds builds a TTL from a caller-supplied seconds value. nil selects the
// default. Only positive values expire: zero, negative and NaN all select
// NoExpiry. Values beyond the time.Duration range are clamped to it, and a
// positive value below one nanosecond becomes one nanosecond.
func Seconds(sec *float64) TTL {
	if sec == nil {
		return DefaultTTL
	}
	ns := *sec * float64(time.Second)
	switch {
	case !(ns > 0):
		return NoExpiry
	case ns >= float64(math.MaxInt64):
		return After(time.Duration(math.MaxInt64))
	}
	d := time.Duration(ns)
	if d < 1 {
		d = 1
	}
	return After(d)
}

func (t TTL) resolve(def time.Duration) time.Duration {
	if !t.set {
		return def
	}
	return t.d
}

// Record is a stored value with its lifecycle timestamps. A zero ExpiresAt
// means the record never expires.
type Record struct {
	Value     []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Entry is a snapshot of one live record.
type Entry struct {
	Key       string
	Value     []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
