package store

import "context"

// CustomerExists reports whether the customer row exists.
func (q *Queries) CustomerExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

// VehicleOwner returns the customer owning the vehicle. pgx.ErrNoRows when absent.
func (q *Queries) VehicleOwner(ctx context.Context, id int64) (int64, error) {
	var owner int64
	err := q.db.QueryRow(ctx, `SELECT customer_id FROM vehicles WHERE id = $1`, id).Scan(&owner)
	return owner, err
}

// JobTypeExists reports whether the job type row exists.
func (q *Queries) JobTypeExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM job_types WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

// Ping checks connectivity of the underlying pool or connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}
