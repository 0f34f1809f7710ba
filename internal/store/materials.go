package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const materialColumns = `id, product_name, product_cost, created_at, updated_at`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.ProductName, &m.ProductCost, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// GetMaterial loads a catalog material. pgx.ErrNoRows when absent.
func (q *Queries) GetMaterial(ctx context.Context, id int64) (Material, error) {
	return scanMaterial(q.db.QueryRow(ctx, `SELECT `+materialColumns+` FROM job_materials WHERE id = $1`, id))
}

// GetMaterialsByIDs loads every material in ids. Missing ids are simply absent from the result.
func (q *Queries) GetMaterialsByIDs(ctx context.Context, ids []int64) ([]Material, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `SELECT `+materialColumns+` FROM job_materials WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const listMaterials = `SELECT ` + materialColumns + ` FROM job_materials
WHERE ($1::text = '' OR product_name ILIKE '%' || $1::text || '%')
ORDER BY product_name, id
LIMIT $2 OFFSET $3`

// ListMaterials searches the catalog by a case-insensitive name fragment.
func (q *Queries) ListMaterials(ctx context.Context, arg ListMaterialsParams) ([]Material, error) {
	rows, err := q.db.Query(ctx, listMaterials, arg.Name, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMaterials counts the catalog entries matching name.
func (q *Queries) CountMaterials(ctx context.Context, name string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM job_materials WHERE ($1::text = '' OR product_name ILIKE '%' || $1::text || '%')`, name).Scan(&n)
	return n, err
}

// CreateMaterial inserts a catalog entry.
func (q *Queries) CreateMaterial(ctx context.Context, name string, cost decimal.Decimal) (Material, error) {
	return scanMaterial(q.db.QueryRow(ctx,
		`INSERT INTO job_materials (product_name, product_cost) VALUES ($1, $2) RETURNING `+materialColumns,
		name, cost))
}

// UpdateMaterial changes the name and current cost. Existing line items keep their snapshot.
func (q *Queries) UpdateMaterial(ctx context.Context, id int64, name string, cost decimal.Decimal) (Material, error) {
	return scanMaterial(q.db.QueryRow(ctx,
		`UPDATE job_materials SET product_name = $2, product_cost = $3, updated_at = now() WHERE id = $1 RETURNING `+materialColumns,
		id, name, cost))
}

// DeleteMaterial removes a catalog entry. Materials referenced by line items fail with 23503.
func (q *Queries) DeleteMaterial(ctx context.Context, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM job_materials WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
