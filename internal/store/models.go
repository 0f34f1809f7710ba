package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Document is a row of billing_documents.
type Document struct {
	ID            int64
	Kind          string
	Number        int64
	CustomerID    int64
	VehicleID     int64
	JobTypeID     int64
	Description   *string
	DueDate       *time.Time
	ServiceCharge decimal.Decimal
	Discount      decimal.NullDecimal
	DiscountType  *string
	VAT           decimal.NullDecimal
	Amount        decimal.Decimal
	Paid          bool
	CreatedBy     string
	UpdatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DocumentLine is a row of document_materials joined with the material name.
type DocumentLine struct {
	ID          int64
	DocumentID  int64
	MaterialID  int64
	ProductName string
	Quantity    int64
	UnitPrice   decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Material is a row of job_materials.
type Material struct {
	ID          int64
	ProductName string
	ProductCost decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Event is a row of domain_events.
type Event struct {
	ID          uuid.UUID
	Topic       string
	AggregateID string
	Payload     json.RawMessage
	OccurredAt  time.Time
}

// CreateDocumentParams holds the columns written on creation.
type CreateDocumentParams struct {
	Kind          string
	Number        int64
	CustomerID    int64
	VehicleID     int64
	JobTypeID     int64
	Description   *string
	DueDate       *time.Time
	ServiceCharge decimal.Decimal
	Discount      decimal.NullDecimal
	DiscountType  *string
	VAT           decimal.NullDecimal
	Amount        decimal.Decimal
	Paid          bool
	Actor         string
}

// UpdateDocumentParams replaces every mutable column of a document.
type UpdateDocumentParams struct {
	ID            int64
	Kind          string
	CustomerID    int64
	VehicleID     int64
	JobTypeID     int64
	Description   *string
	DueDate       *time.Time
	ServiceCharge decimal.Decimal
	Discount      decimal.NullDecimal
	DiscountType  *string
	VAT           decimal.NullDecimal
	Amount        decimal.Decimal
	Paid          bool
	Actor         string
}

// ListDocumentsParams filters and pages documents of a kind.
type ListDocumentsParams struct {
	Kind       string
	CustomerID *int64
	Paid       *bool
	Limit      int
	Offset     int
}

// InsertDocumentLineParams attaches a material with its price snapshot.
type InsertDocumentLineParams struct {
	DocumentID int64
	MaterialID int64
	Quantity   int64
	UnitPrice  decimal.Decimal
}

// ListMaterialsParams filters and pages the catalog.
type ListMaterialsParams struct {
	Name   string
	Limit  int
	Offset int
}
