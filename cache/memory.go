package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Memory is a bounded in-process key/value store with lazy TTL expiry and
// approximate LRU eviction. Records are promoted to the most recent position
// when they are written and when Get returns them; Has and Entries never
// change recency.
//
// A single RWMutex guards the recency list, the index, and the counters, so
// Stats and Entries always observe a consistent snapshot.
type Memory struct {
	mu    sync.RWMutex
	list  recency
	stats counters

	capacity   int
	defaultTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger

	sweepEvery time.Duration
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// New builds a Memory store. When a sweep interval is configured a
// background goroutine is started; call Close to stop it.
func New(opts ...Option) *Memory {
	cfg := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	m := &Memory{
		list:       newRecency(cfg.Capacity),
		capacity:   cfg.Capacity,
		defaultTTL: cfg.DefaultTTL,
		now:        cfg.Now,
		logger:     cfg.Logger,
		sweepEvery: cfg.SweepInterval,
	}

	if m.sweepEvery > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.wg.Add(1)
		go m.sweepLoop(ctx)
	}
	return m
}

// Close stops the background sweeper. It is safe to call more than once.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
	})
	return nil
}

// Put inserts or replaces the record for key. A replaced key is removed
// before capacity is enforced, then the new record lands at the most recent
// position. One eviction is counted per record dropped to make room.
func (m *Memory) Put(key string, value []byte, ttl TTL) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec := Record{Value: cloneBytes(value), CreatedAt: now}
	if d := ttl.resolve(m.defaultTTL); d > 0 {
		rec.ExpiresAt = now.Add(d)
	}

	if idx, ok := m.list.lookup(key); ok {
		m.list.remove(idx)
	}
	for m.list.len() >= m.capacity {
		oldest := m.list.front()
		if oldest == nilNode {
			break
		}
		m.list.remove(oldest)
		m.stats.evictions++
	}
	m.list.pushBack(key, rec)
	m.stats.puts++

	if m.list.len() > m.capacity {
		panic("cache: capacity invariant violated")
	}
}

// Get returns a copy of the value stored under key. Get is not a pure read:
// a hit promotes the record to the most recent position and counts a hit; a
// miss counts a miss and purges the record if it had expired.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.list.lookup(key)
	if !ok {
		m.stats.misses++
		return nil, false
	}
	n := m.list.at(idx)
	if n.rec.expired(m.now()) {
		m.list.remove(idx)
		m.stats.misses++
		return nil, false
	}
	value := cloneBytes(n.rec.Value)
	m.list.moveToBack(idx)
	m.stats.hits++
	return value, true
}

// Has reports whether a live record exists for key. An expired record is
// purged; recency and hit/miss counters are left alone.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.list.lookup(key)
	if !ok {
		return false
	}
	if m.list.at(idx).rec.expired(m.now()) {
		m.list.remove(idx)
		return false
	}
	return true
}

// Delete removes key and reports whether anything was removed.
func (m *Memory) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.list.lookup(key)
	if !ok {
		return false
	}
	m.list.remove(idx)
	m.stats.deletes++
	return true
}

// Clear drops every record and zeroes the counters, returning how many
// records were held.
func (m *Memory) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.list.len()
	m.list.reset(m.capacity)
	m.stats.reset()
	return count
}

// ResetStats zeroes the counters without touching stored records.
func (m *Memory) ResetStats() {
	m.mu.Lock()
	m.stats.reset()
	m.mu.Unlock()
}

// Entries returns a snapshot of every live record, least recently touched
// first. Expired records are skipped but not purged.
func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]Entry, 0, m.list.len())
	m.list.each(func(n *node) bool {
		if n.rec.expired(now) {
			return true
		}
		out = append(out, Entry{
			Key:       n.key,
			Value:     cloneBytes(n.rec.Value),
			CreatedAt: n.rec.CreatedAt,
			ExpiresAt: n.rec.ExpiresAt,
		})
		return true
	})
	return out
}

// Stats returns the counters together with occupancy and configuration.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		Hits:              m.stats.hits,
		Misses:            m.stats.misses,
		Puts:              m.stats.puts,
		Deletes:           m.stats.deletes,
		Evictions:         m.stats.evictions,
		Items:             m.list.len(),
		Capacity:          m.capacity,
		DefaultTTLSeconds: int64(m.defaultTTL / time.Second),
	}
}

// Len returns the number of held records, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list.len()
}

// Capacity returns the configured record bound.
func (m *Memory) Capacity() int { return m.capacity }

// DefaultTTL returns the TTL applied when Put receives DefaultTTL.
func (m *Memory) DefaultTTL() time.Duration { return m.defaultTTL }
