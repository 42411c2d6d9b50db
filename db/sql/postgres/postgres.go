// Package postgres holds the lib/pq connection helpers and the
// repositories backing the cache event log, the score history and the
// traffic corpus.
package postgres

import (
	"context"
	"database/sql"
)

// Connect opens a connection and, when migrate is set, applies Schema.
func Connect(ctx context.Context, migrate bool, opts ...Option) (*sql.DB, error) {
	db, err := Open(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Migrate applies Schema followed by any extra statements.
func Migrate(ctx context.Context, db *sql.DB, extra ...string) error {
	return ApplyMigrations(ctx, db, append(append([]string(nil), Schema...), extra...)...)
}
