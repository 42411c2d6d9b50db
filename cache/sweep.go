package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

func (m *Memory) sweepLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.PurgeExpired(); n > 0 {
				m.logger.Debug("cache sweep", zap.Int("purged", n))
			}
		}
	}
}

// PurgeExpired removes every expired record and returns how many were
// dropped. Purged records are not counted as evictions.
func (m *Memory) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	purged := 0
	for idx := m.list.front(); idx != nilNode; {
		n := m.list.at(idx)
		next := n.next
		if n.rec.expired(now) {
			m.list.remove(idx)
			purged++
		}
		idx = next
	}
	return purged
}
