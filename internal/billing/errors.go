package billing

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/backend-bengkel/internal/catalog"
	"github.com/noah-isme/backend-bengkel/internal/common"
	"github.com/noah-isme/backend-bengkel/internal/docnumber"
	"github.com/noah-isme/backend-bengkel/internal/lineitem"
	"github.com/noah-isme/backend-bengkel/internal/pricing"
	"github.com/noah-isme/backend-bengkel/internal/store"
	"github.com/noah-isme/backend-bengkel/internal/validation"
)

var (
	ErrDocumentNotFound = errors.New("billing: document not found")
	ErrCustomerNotFound = errors.New("billing: customer not found")
	ErrVehicleNotFound  = errors.New("billing: vehicle not found")
	ErrJobTypeNotFound  = errors.New("billing: job type not found")
	ErrVehicleNotOwned  = errors.New("billing: vehicle does not belong to the customer")
	// ErrDocumentPaid is returned for any change to a paid invoice.
	ErrDocumentPaid = errors.New("billing: paid documents cannot be changed")
	// ErrPaidNotAllowed is returned when an estimate is marked paid.
	ErrPaidNotAllowed = errors.New("billing: only invoices can be marked paid")
)

// MissingMaterialsError lists catalog ids that do not exist.
type MissingMaterialsError struct {
	IDs []int64
}

func (e *MissingMaterialsError) Error() string {
	return fmt.Sprintf("billing: materials not found: %v", e.IDs)
}

// Unwrap makes the error match catalog.ErrMaterialNotFound.
func (e *MissingMaterialsError) Unwrap() error { return catalog.ErrMaterialNotFound }

type mapping struct {
	target error
	build  func(err error) *common.AppError
}

func validationErr(code, msg string) func(error) *common.AppError {
	return func(err error) *common.AppError { return common.Validation(code, msg, err) }
}

func notFoundErr(code, msg string) func(error) *common.AppError {
	return func(err error) *common.AppError { return common.NotFound(code, msg, err) }
}

func conflictErr(code, msg string) func(error) *common.AppError {
	return func(err error) *common.AppError { return common.Conflict(code, msg, err) }
}

var mappings = []mapping{
	{lineitem.ErrMalformedLineItems, validationErr("MALFORMED_LINE_ITEMS", `materials must look like "<materialId>:<qty>,..." with positive quantities`)},
	{lineitem.ErrDuplicateLineItem, conflictErr("DUPLICATE_LINE_ITEM", "a material may appear only once in materials")},
	{pricing.ErrNegativeServiceCharge, validationErr("NEGATIVE_SERVICE_CHARGE", "serviceCharge must not be negative")},
	{pricing.ErrIncompleteDiscount, validationErr("INCOMPLETE_DISCOUNT", "discount and discountType must be provided together")},
	{pricing.ErrInvalidDiscountType, validationErr("INVALID_DISCOUNT_TYPE", "discountType must be AMOUNT or PERCENTAGE")},
	{pricing.ErrDiscountOutOfRange, validationErr("DISCOUNT_OUT_OF_RANGE", "discount is out of range")},
	{pricing.ErrDiscountExceedsSubtotal, validationErr("DISCOUNT_EXCEEDS_SUBTOTAL", "discount exceeds the material subtotal")},
	{pricing.ErrVATOutOfRange, validationErr("VAT_OUT_OF_RANGE", "vat must be between 0 and 100")},
	{pricing.ErrTooManyDecimals, validationErr("TOO_MANY_DECIMALS", "serviceCharge, discount and vat allow at most two decimal places")},
	{pricing.ErrAmountTooLarge, validationErr("AMOUNT_TOO_LARGE", "amounts must be below 10000000000")},
	{validation.ErrInvalidDate, validationErr("INVALID_DATE", "dates must use the format YYYY-MM-DD")},
	{ErrVehicleNotOwned, validationErr("VEHICLE_CUSTOMER_MISMATCH", "vehicle does not belong to the customer")},
	{ErrPaidNotAllowed, validationErr("PAID_NOT_ALLOWED", "only invoices can be marked paid")},
	{ErrDocumentNotFound, notFoundErr("DOCUMENT_NOT_FOUND", "document not found")},
	{ErrCustomerNotFound, notFoundErr("CUSTOMER_NOT_FOUND", "customer not found")},
	{ErrVehicleNotFound, notFoundErr("VEHICLE_NOT_FOUND", "vehicle not found")},
	{ErrJobTypeNotFound, notFoundErr("JOB_TYPE_NOT_FOUND", "job type not found")},
	{ErrDocumentPaid, conflictErr("DOCUMENT_PAID", "paid documents cannot be changed")},
}

// ToAppError maps billing, pricing, codec and persistence errors onto API errors.
func ToAppError(err error) error {
	if err == nil || common.IsAppError(err) {
		return err
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		if len(verrs) == 1 && verrs.Has("isodate") {
			return common.Validation("INVALID_DATE", "dates must use the format YYYY-MM-DD", err).
				WithDetails(map[string]any{"fields": verrs})
		}
		return common.Validation("VALIDATION_FAILED", "request validation failed", err).
			WithDetails(map[string]any{"fields": verrs})
	}
	var missing *MissingMaterialsError
	if errors.As(err, &missing) {
		return common.NotFound("MATERIAL_NOT_FOUND", "material not found", err).
			WithDetails(map[string]any{"materialIds": missing.IDs})
	}
	if errors.Is(err, catalog.ErrMaterialNotFound) {
		return common.NotFound("MATERIAL_NOT_FOUND", "material not found", err)
	}
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.build(err)
		}
	}

	switch {
	case errors.Is(err, docnumber.ErrUnavailable):
		return common.Internal("ALLOCATOR_UNAVAILABLE", "document numbers are temporarily unavailable, retry the request", http.StatusServiceUnavailable, err)
	case store.IsPgCode(err, store.CodeUniqueViolation):
		return common.Conflict("CONFLICT", "the document conflicts with an existing record", err)
	case store.IsPgCode(err, store.CodeNumericOutOfRange):
		return common.Validation("AMOUNT_TOO_LARGE", "amounts must be below 10000000000", err)
	case store.IsPgCode(err, store.CodeForeignKeyViolation):
		return common.NotFound("REFERENCE_NOT_FOUND", "a referenced record does not exist", err)
	default:
		return common.Internal("INTERNAL", "internal server error", http.StatusInternalServerError, err)
	}
}
