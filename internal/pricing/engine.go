// Package pricing computes document totals from service charge, material lines,
// discount and VAT.
package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Discount types accepted by Compute.
const (
	DiscountAmount     = "AMOUNT"
	DiscountPercentage = "PERCENTAGE"
)

var (
	// ErrNegativeServiceCharge is returned when the service charge is below zero.
	ErrNegativeServiceCharge = errors.New("pricing: service charge must not be negative")
	// ErrIncompleteDiscount is returned when only one of discount value and type is given.
	ErrIncompleteDiscount = errors.New("pricing: discount and discount type must be provided together")
	// ErrInvalidDiscountType is returned for a type other than AMOUNT or PERCENTAGE.
	ErrInvalidDiscountType = errors.New("pricing: discount type must be AMOUNT or PERCENTAGE")
	// ErrDiscountOutOfRange is returned for a percentage outside [0,100] or a negative amount.
	ErrDiscountOutOfRange = errors.New("pricing: discount out of range")
	// ErrDiscountExceedsSubtotal is returned when the discount cannot be taken from the material subtotal.
	ErrDiscountExceedsSubtotal = errors.New("pricing: discount exceeds material subtotal")
	// ErrVATOutOfRange is returned for a VAT percentage outside [0,100].
	ErrVATOutOfRange = errors.New("pricing: vat out of range")
	// ErrTooManyDecimals is returned for a money or percentage input with
	// more than two decimal places.
	ErrTooManyDecimals = errors.New("pricing: at most two decimal places are allowed")
	// ErrAmountTooLarge is returned when an input or the total reaches MaxAmount.
	ErrAmountTooLarge = errors.New("pricing: amount too large")
)

// MaxAmount is the exclusive upper bound of stored money values, NUMERIC(12,2).
var MaxAmount = decimal.New(1, 10)

var hundred = decimal.NewFromInt(100)

// CheckMoney rejects values that the NUMERIC(12,2) columns cannot hold exactly.
func CheckMoney(v *decimal.Decimal) error {
	if v == nil {
		return nil
	}
	if !v.Equal(v.Round(2)) {
		return ErrTooManyDecimals
	}
	if v.Abs().GreaterThanOrEqual(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

// Line is a priced material line.
type Line struct {
	Quantity  int64
	UnitPrice decimal.Decimal
}

// Input carries the raw pricing inputs. Nil pointers mean "not provided".
type Input struct {
	ServiceCharge *decimal.Decimal
	Lines         []Line
	Discount      *decimal.Decimal
	DiscountType  *string
	VAT           *decimal.Decimal
}

// Breakdown aggregates every intermediate value of the computation.
type Breakdown struct {
	Base             decimal.Decimal
	MaterialSubtotal decimal.Decimal
	DiscountAmount   decimal.Decimal
	Discounted       decimal.Decimal
	VATAmount        decimal.Decimal
	Total            decimal.Decimal
}

// NormalizeDiscountType upper-cases and trims a discount type.
func NormalizeDiscountType(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// Compute applies the billing formula in order: service charge, material
// subtotal, discount on the subtotal, VAT on the discounted subtotal, total.
// The service charge is never discounted or taxed.
func Compute(in Input) (Breakdown, error) {
	base := decimal.Zero
	if in.ServiceCharge != nil {
		base = *in.ServiceCharge
	}
	if base.IsNegative() {
		return Breakdown{}, ErrNegativeServiceCharge
	}
	if err := CheckMoney(&base); err != nil {
		return Breakdown{}, err
	}

	subtotal := decimal.Zero
	for _, line := range in.Lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
	}

	discount, err := discountFor(subtotal, in.Discount, in.DiscountType)
	if err != nil {
		return Breakdown{}, err
	}
	discounted := subtotal.Sub(discount)

	vat := decimal.Zero
	if err := CheckVAT(in.VAT); err != nil {
		return Breakdown{}, err
	}
	if in.VAT != nil && discounted.IsPositive() {
		vat = discounted.Mul(*in.VAT).Div(hundred)
	}

	total := base.Add(discounted).Add(vat).Round(2)
	if total.GreaterThanOrEqual(MaxAmount) {
		return Breakdown{}, ErrAmountTooLarge
	}
	return Breakdown{
		Base:             base,
		MaterialSubtotal: subtotal,
		DiscountAmount:   discount,
		Discounted:       discounted,
		VATAmount:        vat,
		Total:            total,
	}, nil
}

// CheckDiscount validates completeness, type and range of a discount without
// looking at the subtotal.
func CheckDiscount(value *decimal.Decimal, kind *string) error {
	if value == nil && kind == nil {
		return nil
	}
	if value == nil || kind == nil {
		return ErrIncompleteDiscount
	}
	if err := CheckMoney(value); err != nil {
		return err
	}
	switch NormalizeDiscountType(*kind) {
	case DiscountPercentage:
		if value.IsNegative() || value.GreaterThan(hundred) {
			return ErrDiscountOutOfRange
		}
	case DiscountAmount:
		if value.IsNegative() {
			return ErrDiscountOutOfRange
		}
	default:
		return ErrInvalidDiscountType
	}
	return nil
}

// CheckVAT validates a VAT percentage.
func CheckVAT(vat *decimal.Decimal) error {
	if vat == nil {
		return nil
	}
	if vat.IsNegative() || vat.GreaterThan(hundred) {
		return ErrVATOutOfRange
	}
	if !vat.Equal(vat.Round(2)) {
		return ErrTooManyDecimals
	}
	return nil
}

func discountFor(subtotal decimal.Decimal, value *decimal.Decimal, kind *string) (decimal.Decimal, error) {
	if err := CheckDiscount(value, kind); err != nil {
		return decimal.Zero, err
	}
	if value == nil || value.IsZero() {
		return decimal.Zero, nil
	}
	if NormalizeDiscountType(*kind) == DiscountPercentage {
		if !subtotal.IsPositive() {
			return decimal.Zero, ErrDiscountExceedsSubtotal
		}
		return subtotal.Mul(*value).Div(hundred), nil
	}
	if value.GreaterThan(subtotal) {
		return decimal.Zero, ErrDiscountExceedsSubtotal
	}
	return *value, nil
}
