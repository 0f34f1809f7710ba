package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-bengkel/internal/common"
	"github.com/noah-isme/backend-bengkel/internal/docnumber"
	"github.com/noah-isme/backend-bengkel/internal/lineitem"
	"github.com/noah-isme/backend-bengkel/internal/pricing"
	"github.com/noah-isme/backend-bengkel/internal/store"
	"github.com/noah-isme/backend-bengkel/internal/validation"
)

// CreateRequest is the body of POST /invoices and POST /estimates.
type CreateRequest struct {
	CustomerID    int64            `json:"customerId" validate:"required,gt=0"`
	VehicleID     int64            `json:"vehicleId" validate:"required,gt=0"`
	JobTypeID     int64            `json:"jobTypeId" validate:"required,gt=0"`
	Description   *string          `json:"description" validate:"omitempty,max=2000"`
	DueDate       *string          `json:"dueDate" validate:"omitempty,isodate"`
	ServiceCharge *decimal.Decimal `json:"serviceCharge"`
	Materials     *string          `json:"materials"`
	Discount      *decimal.Decimal `json:"discount"`
	DiscountType  *string          `json:"discountType"`
	VAT           *decimal.Decimal `json:"vat"`
}

// UpdateRequest is the body of PATCH /invoices/{id} and /estimates/{id}.
// Nil fields keep their stored value. A nil Materials leaves the line items
// untouched and "" removes all of them.
type UpdateRequest struct {
	CustomerID    *int64           `json:"customerId" validate:"omitempty,gt=0"`
	VehicleID     *int64           `json:"vehicleId" validate:"omitempty,gt=0"`
	JobTypeID     *int64           `json:"jobTypeId" validate:"omitempty,gt=0"`
	Description   *string          `json:"description" validate:"omitempty,max=2000"`
	DueDate       *string          `json:"dueDate" validate:"omitempty,isodate"`
	ServiceCharge *decimal.Decimal `json:"serviceCharge"`
	Materials     *string          `json:"materials"`
	Discount      *decimal.Decimal `json:"discount"`
	DiscountType  *string          `json:"discountType"`
	VAT           *decimal.Decimal `json:"vat"`
	Paid          *bool            `json:"paid"`
}

// PreviewRequest is the body of POST /billing/preview.
type PreviewRequest struct {
	ServiceCharge *decimal.Decimal `json:"serviceCharge"`
	Materials     string           `json:"materials"`
	Discount      *decimal.Decimal `json:"discount"`
	DiscountType  *string          `json:"discountType"`
	VAT           *decimal.Decimal `json:"vat"`
}

// ListFilter narrows List.
type ListFilter struct {
	CustomerID *int64
	Paid       *bool
	Page       common.Pagination
}

// Line is a priced line item of a document.
type Line struct {
	MaterialID  int64  `json:"materialId"`
	ProductName string `json:"productName,omitempty"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	LineTotal   string `json:"lineTotal"`
}

// Breakdown shows every intermediate of the price computation.
type Breakdown struct {
	ServiceCharge    string `json:"serviceCharge"`
	MaterialSubtotal string `json:"materialSubtotal"`
	DiscountAmount   string `json:"discountAmount"`
	Discounted       string `json:"discountedSubtotal"`
	VATAmount        string `json:"vatAmount"`
	Total            string `json:"total"`
}

// Document is the API representation of an invoice or estimate.
type Document struct {
	ID            int64      `json:"id"`
	Kind          string     `json:"kind"`
	Number        int64      `json:"number"`
	CustomerID    int64      `json:"customerId"`
	VehicleID     int64      `json:"vehicleId"`
	JobTypeID     int64      `json:"jobTypeId"`
	Description   *string    `json:"description,omitempty"`
	DueDate       *string    `json:"dueDate,omitempty"`
	ServiceCharge string     `json:"serviceCharge"`
	Discount      *string    `json:"discount,omitempty"`
	DiscountType  *string    `json:"discountType,omitempty"`
	VAT           *string    `json:"vat,omitempty"`
	Amount        string     `json:"amount"`
	Paid          *bool      `json:"paid,omitempty"`
	Materials     *string    `json:"materials,omitempty"`
	Lines         []Line     `json:"lines,omitempty"`
	Breakdown     *Breakdown `json:"breakdown,omitempty"`
	CreatedBy     string     `json:"createdBy"`
	UpdatedBy     string     `json:"updatedBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// ListResult is a page of documents. Lines are omitted from list entries.
type ListResult struct {
	Items []Document
	Total int64
}

// Preview is the dry-run pricing result.
type Preview struct {
	Materials string    `json:"materials"`
	Lines     []Line    `json:"lines"`
	Breakdown Breakdown `json:"breakdown"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullMoney(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := money(d.Decimal)
	return &s
}

func nullPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func toNull(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func breakdownView(b pricing.Breakdown) *Breakdown {
	return &Breakdown{
		ServiceCharge:    money(b.Base),
		MaterialSubtotal: money(b.MaterialSubtotal),
		DiscountAmount:   money(b.DiscountAmount),
		Discounted:       money(b.Discounted),
		VATAmount:        money(b.VATAmount),
		Total:            money(b.Total),
	}
}

func lineView(materialID, quantity int64, name string, unitPrice decimal.Decimal) Line {
	return Line{
		MaterialID:  materialID,
		ProductName: name,
		Quantity:    quantity,
		UnitPrice:   money(unitPrice),
		LineTotal:   money(unitPrice.Mul(decimal.NewFromInt(quantity))),
	}
}

// present builds the API view of a stored document. lines may be nil for
// list entries; the breakdown is included whenever lines are.
func present(doc store.Document, lines []store.DocumentLine) Document {
	out := Document{
		ID:            doc.ID,
		Kind:          doc.Kind,
		Number:        doc.Number,
		CustomerID:    doc.CustomerID,
		VehicleID:     doc.VehicleID,
		JobTypeID:     doc.JobTypeID,
		Description:   doc.Description,
		ServiceCharge: money(doc.ServiceCharge),
		Discount:      nullMoney(doc.Discount),
		DiscountType:  doc.DiscountType,
		VAT:           nullMoney(doc.VAT),
		Amount:        money(doc.Amount),
		CreatedBy:     doc.CreatedBy,
		UpdatedBy:     doc.UpdatedBy,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if doc.DueDate != nil {
		s := doc.DueDate.Format(validation.DateLayout)
		out.DueDate = &s
	}
	if doc.Kind == string(docnumber.KindInvoice) {
		paid := doc.Paid
		out.Paid = &paid
	}
	if lines == nil {
		return out
	}

	items := make([]lineitem.Item, 0, len(lines))
	priced := make([]pricing.Line, 0, len(lines))
	out.Lines = make([]Line, 0, len(lines))
	for _, l := range lines {
		items = append(items, lineitem.Item{MaterialID: l.MaterialID, Quantity: l.Quantity})
		priced = append(priced, pricing.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice})
		out.Lines = append(out.Lines, lineView(l.MaterialID, l.Quantity, l.ProductName, l.UnitPrice))
	}
	encoded := lineitem.Encode(items)
	out.Materials = &encoded
	if b, err := pricing.Compute(pricingInput(doc, priced)); err == nil {
		out.Breakdown = breakdownView(b)
	}
	return out
}

func pricingInput(doc store.Document, lines []pricing.Line) pricing.Input {
	sc := doc.ServiceCharge
	return pricing.Input{
		ServiceCharge: &sc,
		Lines:         lines,
		Discount:      nullPtr(doc.Discount),
		DiscountType:  doc.DiscountType,
		VAT:           nullPtr(doc.VAT),
	}
}
