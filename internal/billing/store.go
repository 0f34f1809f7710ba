package billing

import (
	"context"

	"github.com/noah-isme/backend-bengkel/internal/docnumber"
	"github.com/noah-isme/backend-bengkel/internal/store"
)

// Querier is the persistence surface of the billing service. *store.Queries
// satisfies it both pool-bound and transaction-bound.
type Querier interface {
	docnumber.Sequence

	GetDocument(ctx context.Context, kind string, id int64) (store.Document, error)
	GetDocumentForUpdate(ctx context.Context, kind string, id int64) (store.Document, error)
	ListDocuments(ctx context.Context, arg store.ListDocumentsParams) ([]store.Document, error)
	CountDocuments(ctx context.Context, arg store.ListDocumentsParams) (int64, error)
	CreateDocument(ctx context.Context, arg store.CreateDocumentParams) (store.Document, error)
	UpdateDocument(ctx context.Context, arg store.UpdateDocumentParams) (store.Document, error)
	DeleteDocument(ctx context.Context, kind string, id int64) (int64, error)

	ListDocumentLines(ctx context.Context, documentID int64) ([]store.DocumentLine, error)
	InsertDocumentLine(ctx context.Context, arg store.InsertDocumentLineParams) error
	UpdateDocumentLineQuantity(ctx context.Context, documentID, materialID, quantity int64) error
	DeleteDocumentLine(ctx context.Context, documentID, materialID int64) error

	GetMaterialsByIDs(ctx context.Context, ids []int64) ([]store.Material, error)
	CustomerExists(ctx context.Context, id int64) (bool, error)
	VehicleOwner(ctx context.Context, id int64) (int64, error)
	JobTypeExists(ctx context.Context, id int64) (bool, error)

	InsertDomainEvent(ctx context.Context, ev store.Event) error
}

// Transactor runs fn in one database transaction, committing when fn
// returns nil and rolling back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(Querier) error) error
}

// PgTransactor adapts *store.Store to Transactor.
type PgTransactor struct {
	Store *store.Store
}

// InTx implements Transactor.
func (t PgTransactor) InTx(ctx context.Context, fn func(Querier) error) error {
	return t.Store.InTx(ctx, func(q *store.Queries) error { return fn(q) })
}
