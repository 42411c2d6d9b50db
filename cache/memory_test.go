package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemory(t *testing.T, clock *fakeClock, opts ...Option) *Memory {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	m := New(opts...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestPutGet(t *testing.T) {
	m := newTestMemory(t, newFakeClock())

	m.Put("k", []byte(`"v"`), DefaultTTL)

	got, ok := m.Get("k")
	if !ok {
		t.Fatalf("Get() miss, want hit")
	}
	if string(got) != `"v"` {
		t.Fatalf("Get() = %q, want %q", got, `"v"`)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := newTestMemory(t, newFakeClock())

	in := []byte("abc")
	m.Put("k", in, DefaultTTL)
	in[0] = 'x'

	got, _ := m.Get("k")
	got[1] = 'y'

	again, _ := m.Get("k")
	if string(again) != "abc" {
		t.Fatalf("stored value mutated through caller slice: %q", again)
	}
}

func TestCapacityInvariant(t *testing.T) {
	const capacity = 8
	m := newTestMemory(t, newFakeClock(), WithCapacity(capacity))
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("k%d", rng.Intn(40))
		m.Put(key, []byte("v"), DefaultTTL)
		if n := m.Len(); n > capacity {
			t.Fatalf("after put %d size = %d, want <= %d", i, n, capacity)
		}
	}
}

func TestTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	m := newTestMemory(t, clock)

	m.Put("k", []byte("v"), After(time.Second))
	if _, ok := m.Get("k"); !ok {
		t.Fatalf("Get() immediately after Put missed")
	}

	clock.Advance(time.Second)

	if _, ok := m.Get("k"); ok {
		t.Fatalf("Get() after TTL hit, want miss")
	}
	for _, e := range m.Entries() {
		if e.Key == "k" {
			t.Fatalf("Entries() still lists expired key")
		}
	}
	if n := m.Len(); n != 0 {
		t.Fatalf("expired record not purged by Get, len = %d", n)
	}
}

func TestNoExpiry(t *testing.T) {
	clock := newFakeClock()
	m := newTestMemory(t, clock, WithDefaultTTL(0))

	m.Put("explicit", []byte("v"), NoExpiry)
	m.Put("defaulted", []byte("v"), DefaultTTL)
	m.Put("zero", []byte("v"), After(0))

	clock.Advance(100 * 365 * 24 * time.Hour)

	for _, key := range []string{"explicit", "defaulted", "zero"} {
		if _, ok := m.Get(key); !ok {
			t.Fatalf("Get(%q) missed, want never-expiring record", key)
		}
	}
	for _, e := range m.Entries() {
		if !e.ExpiresAt.IsZero() {
			t.Fatalf("entry %q has expiry %v, want none", e.Key, e.ExpiresAt)
		}
	}
}

func TestSecondsTTL(t *testing.T) {
	clock := newFakeClock()
	m := newTestMemory(t, clock, WithDefaultTTL(time.Hour))

	zero := 0.0
	two := 2.0
	m.Put("default", []byte("v"), Seconds(nil))
	m.Put("zero", []byte("v"), Seconds(&zero))
	m.Put("two", []byte("v"), Seconds(&two))

	clock.Advance(3 * time.Second)
	if _, ok := m.Get("two"); ok {
		t.Fatalf("two-second record survived")
	}
	if _, ok := m.Get("default"); !ok {
		t.Fatalf("default-TTL record expired early")
	}

	clock.Advance(2 * time.Hour)
	if _, ok := m.Get("default"); ok {
		t.Fatalf("default-TTL record survived past an hour")
	}
	if _, ok := m.Get("zero"); !ok {
		t.Fatalf("ttl=0 record expired")
	}
}

func TestSecondsEdgeValues(t *testing.T) {
	clock := newFakeClock()
	m := newTestMemory(t, clock, WithDefaultTTL(time.Second))

	negative := -5.0
	huge := 1e12
	tiny := 1e-12
	m.Put("negative", []byte("v"), Seconds(&negative))
	m.Put("huge", []byte("v"), Seconds(&huge))
	m.Put("tiny", []byte("v"), Seconds(&tiny))

	if got := Seconds(&huge); got != After(time.Duration(math.MaxInt64)) {
		t.Fatalf("Seconds(1e12) = %+v, want clamped to max duration", got)
	}
	if got := Seconds(&negative); got != NoExpiry {
		t.Fatalf("Seconds(-5) = %+v, want NoExpiry", got)
	}

	clock.Advance(24 * 365 * time.Hour)
	if _, ok := m.Get("negative"); !ok {
		t.Fatalf("negative ttl record expired, want no expiry")
	}
	if _, ok := m.Get("huge"); !ok {
		t.Fatalf("huge ttl record expired after a year")
	}
	if _, ok := m.Get("tiny"); ok {
		t.Fatalf("sub-nanosecond ttl record never expired")
	}
	for _, e := range m.Entries() {
		if e.Key == "huge" && !e.ExpiresAt.After(clock.Now()) {
			t.Fatalf("huge ttl ExpiresAt = %v, want future", e.ExpiresAt)
		}
	}
}

func TestRecencyEviction(t *testing.T) {
	m := newTestMemory(t, newFakeClock(), WithCapacity(2))

	m.Put("a", []byte("A"), DefaultTTL)
	m.Put("b", []byte("B"), DefaultTTL)
	if _, ok := m.Get("a"); !ok {
		t.Fatalf("Get(a) missed")
	}
	m.Put("c", []byte("C"), DefaultTTL)

	if m.Has("b") {
		t.Fatalf("b survived, want evicted")
	}
	if !m.Has("a") || !m.Has("c") {
		t.Fatalf("a and c must remain")
	}
	if got := m.Stats().Evictions; got != 1 {
		t.Fatalf("evictions = %d, want 1", got)
	}
}

func TestHasDoesNotPromote(t *testing.T) {
	m := newTestMemory(t, newFakeClock(), WithCapacity(2))

	m.Put("a", []byte("A"), DefaultTTL)
	m.Put("b", []byte("B"), DefaultTTL)
	if !m.Has("a") {
		t.Fatalf("Has(a) = false")
	}
	m.Put("c", []byte("C"), DefaultTTL)

	if m.Has("a") {
		t.Fatalf("a survived; Has must not promote")
	}
	st := m.Stats()
	if st.Hits != 0 || st.Misses != 0 {
		t.Fatalf("Has touched counters: hits=%d misses=%d", st.Hits, st.Misses)
	}
}

func TestHasPurgesExpired(t *testing.T) {
	clock := newFakeClock()
	m := newTestMemory(t, clock)

	m.Put("k", []byte("v"), After(time.Second))
	clock.Advance(2 * time.Second)

	if m.Has("k") {
		t.Fatalf("Has() = true for expired record")
	}
	if n := m.Len(); n != 0 {
		t.Fatalf("len = %d after Has purge, want 0", n)
	}
}

func TestReplaceSemantics(t *testing.T) {
	m := newTestMemory(t, newFakeClock(), WithCapacity(2))

	m.Put("x", []byte("X"), DefaultTTL)
	m.Put("k", []byte("v1"), DefaultTTL)
	m.Put("k", []byte("v2"), DefaultTTL)

	if n := m.Len(); n != 2 {
		t.Fatalf("len = %d, want 2", n)
	}
	got, _ := m.Get("k")
	if string(got) != "v2" {
		t.Fatalf("Get(k) = %q, want v2", got)
	}
	st := m.Stats()
	if st.Puts != 3 {
		t.Fatalf("puts = %d, want 3", st.Puts)
	}
	if st.Evictions != 0 {
		t.Fatalf("replace evicted %d records", st.Evictions)
	}
}

func TestReplaceMovesToMostRecent(t *testing.T) {
	m := newTestMemory(t, newFakeClock(), WithCapacity(2))

	m.Put("a", []byte("A"), DefaultTTL)
	m.Put("b", []byte("B"), DefaultTTL)
	m.Put("a", []byte("A2"), DefaultTTL)
	m.Put("c", []byte("C"), DefaultTTL)

	if m.Has("b") {
		t.Fatalf("b survived; replacing a should have made b the oldest")
	}
	if !m.Has("a") {
		t.Fatalf("a evicted after replace")
	}
}

func TestStatsAccuracy(t *testing.T) {
	m := newTestMemory(t, newFakeClock(), WithCapacity(3))

	for i := 0; i < 5; i++ {
		m.Put(fmt.Sprintf("k%d", i), []byte("v"), DefaultTTL)
	}
	// k2, k3, k4 remain.
	for _, key := range []string{"k2", "k3", "k4", "k4"} {
		if _, ok := m.Get(key); !ok {
			t.Fatalf("Get(%q) missed", key)
		}
	}
	for _, key := range []string{"k0", "k1", "nope"} {
		if _, ok := m.Get(key); ok {
			t.Fatalf("Get(%q) hit", key)
		}
	}
	m.Delete("k2")
	m.Delete("absent")

	want := Stats{Hits: 4, Misses: 3, Puts: 5, Deletes: 1, Evictions: 2, Items: 2, Capacity: 3, DefaultTTLSeconds: DefaultTTLSeconds}
	if got := m.Stats(); got != want {
		t.Fatalf("Stats() = %+v, want %+v", got, want)
	}

	m.ResetStats()
	got := m.Stats()
	if got.Hits+got.Misses+got.Puts+got.Deletes+got.Evictions != 0 {
		t.Fatalf("ResetStats left counters: %+v", got)
	}
	if got.Items != 2 {
		t.Fatalf("ResetStats altered items: %d", got.Items)
	}
}

func TestIdempotentDelete(t *testing.T) {
	m := newTestMemory(t, newFakeClock())

	if m.Delete("missing") {
		t.Fatalf("Delete(missing) = true")
	}
	if got := m.Stats().Deletes; got != 0 {
		t.Fatalf("deletes = %d, want 0", got)
	}
	m.Put("k", []byte("v"), DefaultTTL)
	if !m.Delete("k") {
		t.Fatalf("Delete(k) = false")
	}
	if m.Delete("k") {
		t.Fatalf("second Delete(k) = true")
	}
	if got := m.Stats().Deletes; got != 1 {
		t.Fatalf("deletes = %d, want 1", got)
	}
}

func TestClearResetsEverything(t *testing.T) {
	m := newTestMemory(t, newFakeClock())

	m.Put("a", []byte("A"), DefaultTTL)
	m.Put("b", []byte("B"), DefaultTTL)
	m.Get("a")

	if n := m.Clear(); n != 2 {
		t.Fatalf("Clear() = %d, want 2", n)
	}
	st := m.Stats()
	if st.Items != 0 || st.Hits != 0 || st.Puts != 0 {
		t.Fatalf("Clear left state behind: %+v", st)
	}
	m.Put("c", []byte("C"), DefaultTTL)
	if !m.Has("c") {
		t.Fatalf("store unusable after Clear")
	}
}

func TestEntriesFiltersWithoutPurging(t *testing.T) {
	clock := newFakeClock()
	m := newTestMemory(t, clock)

	m.Put("short", []byte("s"), After(time.Second))
	m.Put("long", []byte("l"), After(time.Hour))
	clock.Advance(2 * time.Second)

	entries := m.Entries()
	if len(entries) != 1 || entries[0].Key != "long" {
		t.Fatalf("Entries() = %+v, want only long", entries)
	}
	if got := entries[0].ExpiresAt.Sub(entries[0].CreatedAt); got != time.Hour {
		t.Fatalf("entry ttl = %v, want 1h", got)
	}
	if n := m.Len(); n != 2 {
		t.Fatalf("Entries purged records, len = %d", n)
	}
}

func TestPurgeExpired(t *testing.T) {
	clock := newFakeClock()
	m := newTestMemory(t, clock)

	for i := 0; i < 4; i++ {
		m.Put(fmt.Sprintf("s%d", i), []byte("v"), After(time.Second))
	}
	m.Put("keep", []byte("v"), NoExpiry)
	clock.Advance(time.Minute)

	if n := m.PurgeExpired(); n != 4 {
		t.Fatalf("PurgeExpired() = %d, want 4", n)
	}
	if n := m.Len(); n != 1 {
		t.Fatalf("len = %d, want 1", n)
	}
	if got := m.Stats().Evictions; got != 0 {
		t.Fatalf("purge counted %d evictions", got)
	}
}

func TestBackgroundSweep(t *testing.T) {
	m := New(WithSweepInterval(10*time.Millisecond), WithDefaultTTL(20*time.Millisecond))
	defer m.Close()

	m.Put("k", []byte("v"), DefaultTTL)

	deadline := time.Now().Add(2 * time.Second)
	for m.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper never purged expired record")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestArenaSlotReuse(t *testing.T) {
	m := newTestMemory(t, newFakeClock(), WithCapacity(4))

	for i := 0; i < 100; i++ {
		m.Put(fmt.Sprintf("k%d", i), []byte("v"), DefaultTTL)
	}
	if n := len(m.list.nodes); n > 4 {
		t.Fatalf("arena grew to %d nodes, want <= 4", n)
	}
}

func TestConcurrentAccess(t *testing.T) {
	const capacity = 16
	m := New(WithCapacity(capacity))
	defer m.Close()

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (worker*7+i)%48)
				switch i % 5 {
				case 0, 1:
					m.Put(key, []byte(key), DefaultTTL)
				case 2:
					m.Get(key)
				case 3:
					m.Has(key)
				default:
					m.Delete(key)
				}
				if n := m.Len(); n > capacity {
					t.Errorf("size %d exceeds capacity", n)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	st := m.Stats()
	if st.Items > capacity {
		t.Fatalf("items %d > capacity", st.Items)
	}
}

func TestMemoryAsStore(t *testing.T) {
	m := newTestMemory(t, newFakeClock())
	store := m.AsStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get() = %q, %v", got, err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := store.Set(cancelled, "k", nil, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
