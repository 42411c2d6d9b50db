package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrSchemaMissing is returned when a table has not been migrated yet.
	ErrSchemaMissing = errors.New("postgres: schema not migrated")
	ErrUnavailable   = errors.New("postgres: database unavailable")
)

// translateError maps server error codes to sentinels and keeps the pq
// error reachable through errors.As.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P01":
			return fmt.Errorf("%w: %w", ErrSchemaMissing, err)
		case "57P01", "57P03", "53300":
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	return err
}
