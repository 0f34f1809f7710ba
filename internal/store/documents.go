package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const documentColumns = `id, kind, number, customer_id, vehicle_id, job_type_id, description, due_date,
	service_charge, discount, discount_type, vat, amount, paid, created_by, updated_by, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(
		&d.ID, &d.Kind, &d.Number, &d.CustomerID, &d.VehicleID, &d.JobTypeID, &d.Description, &d.DueDate,
		&d.ServiceCharge, &d.Discount, &d.DiscountType, &d.VAT, &d.Amount, &d.Paid,
		&d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	return d, err
}

const getDocument = `SELECT ` + documentColumns + ` FROM billing_documents WHERE kind = $1 AND id = $2`

// GetDocument loads a document of a kind. pgx.ErrNoRows when absent.
func (q *Queries) GetDocument(ctx context.Context, kind string, id int64) (Document, error) {
	return scanDocument(q.db.QueryRow(ctx, getDocument, kind, id))
}

// GetDocumentForUpdate loads and row-locks a document until the transaction ends.
func (q *Queries) GetDocumentForUpdate(ctx context.Context, kind string, id int64) (Document, error) {
	return scanDocument(q.db.QueryRow(ctx, getDocument+` FOR UPDATE`, kind, id))
}

const listDocuments = `SELECT ` + documentColumns + ` FROM billing_documents
WHERE kind = $1
  AND ($2::bigint IS NULL OR customer_id = $2)
  AND ($3::boolean IS NULL OR paid = $3)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`

// ListDocuments returns a page of documents, newest first.
func (q *Queries) ListDocuments(ctx context.Context, arg ListDocumentsParams) ([]Document, error) {
	rows, err := q.db.Query(ctx, listDocuments, arg.Kind, arg.CustomerID, arg.Paid, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const countDocuments = `SELECT COUNT(*) FROM billing_documents
WHERE kind = $1
  AND ($2::bigint IS NULL OR customer_id = $2)
  AND ($3::boolean IS NULL OR paid = $3)`

// CountDocuments counts the documents matching the list filters.
func (q *Queries) CountDocuments(ctx context.Context, arg ListDocumentsParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countDocuments, arg.Kind, arg.CustomerID, arg.Paid).Scan(&n)
	return n, err
}

const createDocument = `INSERT INTO billing_documents (
	kind, number, customer_id, vehicle_id, job_type_id, description, due_date,
	service_charge, discount, discount_type, vat, amount, paid, created_by, updated_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
RETURNING ` + documentColumns

// CreateDocument inserts a document and returns the stored row.
func (q *Queries) CreateDocument(ctx context.Context, arg CreateDocumentParams) (Document, error) {
	return scanDocument(q.db.QueryRow(ctx, createDocument,
		arg.Kind, arg.Number, arg.CustomerID, arg.VehicleID, arg.JobTypeID, arg.Description, arg.DueDate,
		arg.ServiceCharge, arg.Discount, arg.DiscountType, arg.VAT, arg.Amount, arg.Paid, arg.Actor,
	))
}

const updateDocument = `UPDATE billing_documents SET
	customer_id = $3, vehicle_id = $4, job_type_id = $5, description = $6, due_date = $7,
	service_charge = $8, discount = $9, discount_type = $10, vat = $11, amount = $12, paid = $13,
	updated_by = $14, updated_at = now()
WHERE kind = $1 AND id = $2
RETURNING ` + documentColumns

// UpdateDocument rewrites the mutable columns of a document.
func (q *Queries) UpdateDocument(ctx context.Context, arg UpdateDocumentParams) (Document, error) {
	return scanDocument(q.db.QueryRow(ctx, updateDocument,
		arg.Kind, arg.ID, arg.CustomerID, arg.VehicleID, arg.JobTypeID, arg.Description, arg.DueDate,
		arg.ServiceCharge, arg.Discount, arg.DiscountType, arg.VAT, arg.Amount, arg.Paid, arg.Actor,
	))
}

const deleteDocument = `DELETE FROM billing_documents WHERE kind = $1 AND id = $2`

// DeleteDocument removes a document and, through the cascade, its line items.
func (q *Queries) DeleteDocument(ctx context.Context, kind string, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteDocument, kind, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listDocumentLines = `SELECT dm.id, dm.document_id, dm.material_id, jm.product_name, dm.quantity, dm.unit_price,
	dm.created_at, dm.updated_at
FROM document_materials dm
JOIN job_materials jm ON jm.id = dm.material_id
WHERE dm.document_id = $1
ORDER BY dm.material_id`

// ListDocumentLines returns the line items of a document ordered by material.
func (q *Queries) ListDocumentLines(ctx context.Context, documentID int64) ([]DocumentLine, error) {
	rows, err := q.db.Query(ctx, listDocumentLines, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DocumentLine
	for rows.Next() {
		var l DocumentLine
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.MaterialID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const insertDocumentLine = `INSERT INTO document_materials (document_id, material_id, quantity, unit_price)
VALUES ($1, $2, $3, $4)`

// InsertDocumentLine attaches a material with its price snapshot.
func (q *Queries) InsertDocumentLine(ctx context.Context, arg InsertDocumentLineParams) error {
	_, err := q.db.Exec(ctx, insertDocumentLine, arg.DocumentID, arg.MaterialID, arg.Quantity, arg.UnitPrice)
	return err
}

const updateDocumentLineQuantity = `UPDATE document_materials SET quantity = $3, updated_at = now()
WHERE document_id = $1 AND material_id = $2`

// UpdateDocumentLineQuantity changes only the quantity; the price snapshot stays.
func (q *Queries) UpdateDocumentLineQuantity(ctx context.Context, documentID, materialID, quantity int64) error {
	tag, err := q.db.Exec(ctx, updateDocumentLineQuantity, documentID, materialID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

const deleteDocumentLine = `DELETE FROM document_materials WHERE document_id = $1 AND material_id = $2`

// DeleteDocumentLine detaches a material from a document.
func (q *Queries) DeleteDocumentLine(ctx context.Context, documentID, materialID int64) error {
	_, err := q.db.Exec(ctx, deleteDocumentLine, documentID, materialID)
	return err
}
