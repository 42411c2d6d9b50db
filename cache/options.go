package cache

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultCapacity   = 1000
	DefaultTTLSeconds = 3600
)

// Options controls the Memory store's bounds and maintenance.
type Options struct {
	Capacity      int
	DefaultTTL    time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
	Logger        *zap.Logger
}

type Option func(*Options)

// WithCapacity bounds the number of records; non-positive values keep the default.
func WithCapacity(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Capacity = n
		}
	}
}

// WithDefaultTTL sets the TTL used when Put receives DefaultTTL. Zero or
// negative makes such records never expire.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *Options) {
		if d < 0 {
			d = 0
		}
		o.DefaultTTL = d
	}
}

// WithSweepInterval enables a background purge of expired records.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.SweepInterval = d
		}
	}
}

// WithClock overrides the time source used for creation and expiry.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
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

func defaultOptions() Options {
	return Options{
		Capacity:   DefaultCapacity,
		DefaultTTL: DefaultTTLSeconds * time.Second,
		Now:        time.Now,
		Logger:     zap.NewNop(),
	}
}
