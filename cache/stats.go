package cache

// Stats is a read-only view of the store counters and its configuration.
type Stats struct {
	Hits              uint64 `json:"hits"`
	Misses            uint64 `json:"misses"`
	Puts              uint64 `json:"puts"`
	Deletes           uint64 `json:"deletes"`
	Evictions         uint64 `json:"evictions"`
	Items             int    `json:"items"`
	Capacity          int    `json:"capacity"`
	DefaultTTLSeconds int64  `json:"defaultTtlSeconds"`
}

// HitRate returns hits / (hits + misses), or 0 before any read.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// counters is only touched while holding Memory.mu.
type counters struct {
	hits      uint64
	misses    uint64
	puts      uint64
	deletes   uint64
	evictions uint64
}

func (c *counters) reset() { *c = counters{} }
