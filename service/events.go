package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Action names a cache mutation recorded in the event log.
type Action string

const (
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionFallback   Action = "fallback"
	ActionClear      Action = "clear"
	ActionResetStats Action = "reset_stats"
)

// Event is one cache mutation. Key is empty for store-wide actions.
type Event struct {
	Key    string
	Action Action
	At     time.Time
}

// EventLogger persists cache events. Failures are logged and otherwise
// ignored; they never fail the cache operation that produced the event.
type EventLogger interface {
	LogEvent(ctx context.Context, ev Event) error
}

// EventLoggerFunc adapts a function to EventLogger.
type EventLoggerFunc func(ctx context.Context, ev Event) error

func (f EventLoggerFunc) LogEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }

const eventWriteTimeout = 2 * time.Second

// eventQueue writes events from a single goroutine so request handlers
// never wait on the database. Events are dropped when the buffer is full.
type eventQueue struct {
	sink   EventLogger
	logger *zap.Logger
	ch     chan Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newEventQueue(sink EventLogger, size int, logger *zap.Logger) *eventQueue {
	q := &eventQueue{sink: sink, logger: logger, ch: make(chan Event, size)}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- ev:
	default:
		q.logger.Warn("event log buffer full, dropping event",
			zap.String("action", string(ev.Action)),
			zap.String("key", ev.Key),
		)
	}
}

func (q *eventQueue) run() {
	defer q.wg.Done()
	for ev := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), eventWriteTimeout)
		if err := q.sink.LogEvent(ctx, ev); err != nil {
			q.logger.Warn("event log write failed",
				zap.String("action", string(ev.Action)),
				zap.String("key", ev.Key),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (q *eventQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}
