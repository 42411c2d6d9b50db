package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adeilh/qacache/service"
)

// EventRepository appends cache events to cache_logs.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// LogEvent satisfies service.EventLogger. ts is stored as Unix milliseconds.
func (r *EventRepository) LogEvent(ctx context.Context, ev service.Event) error {
	const query = `INSERT INTO cache_logs (key, action, ts) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, ev.Key, string(ev.Action), ev.At.UnixMilli()); err != nil {
		return fmt.Errorf("postgres: log event: %w", translateError(err))
	}
	return nil
}

// Recent returns up to limit events for key, newest first.
func (r *EventRepository) Recent(ctx context.Context, key string, limit int) ([]service.Event, error) {
	const query = `SELECT key, action, ts FROM cache_logs WHERE key = $1 ORDER BY id DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, key, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent events: %w", translateError(err))
	}
	defer rows.Close()

	var out []service.Event
	for rows.Next() {
		var (
			ev     service.Event
			action string
			ts     int64
		)
		if err := rows.Scan(&ev.Key, &action, &ts); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Action = service.Action(action)
		ev.At = time.UnixMilli(ts)
		out = append(out, ev)
	}
	return out, rows.Err()
}
