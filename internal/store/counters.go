package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-bengkel/internal/docnumber"
)

// MaxDocumentNumber returns the highest number issued for kind, 0 when none.
func (q *Queries) MaxDocumentNumber(ctx context.Context, kind docnumber.Kind) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT COALESCE(MAX(number), 0) FROM billing_documents WHERE kind = $1`, string(kind)).Scan(&n)
	return n, err
}

const seedCounter = `INSERT INTO document_counters (kind, last_number) VALUES ($1, $2)
ON CONFLICT (kind) DO UPDATE
SET last_number = GREATEST(document_counters.last_number, EXCLUDED.last_number), updated_at = now()`

// SeedCounter raises the counter of kind to value; it never lowers it.
func (q *Queries) SeedCounter(ctx context.Context, kind docnumber.Kind, value int64) error {
	_, err := q.db.Exec(ctx, seedCounter, string(kind), value)
	return err
}

const incrementCounter = `UPDATE document_counters SET last_number = last_number + 1, updated_at = now()
WHERE kind = $1
RETURNING last_number`

// IncrementCounter bumps and returns the counter. The row stays locked until
// the surrounding transaction ends, serialising concurrent creators.
func (q *Queries) IncrementCounter(ctx context.Context, kind docnumber.Kind) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, incrementCounter, string(kind)).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, docnumber.ErrCounterMissing
	}
	return n, err
}
