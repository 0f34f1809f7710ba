package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func str(v string) *string { return &v }

func TestComputeServiceChargeOnly(t *testing.T) {
	got, err := Compute(Input{ServiceCharge: dec("100")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Total.StringFixed(2) != "100.00" {
		t.Fatalf("expected 100.00, got %s", got.Total.StringFixed(2))
	}
}

func TestComputeAmountDiscountThenVAT(t *testing.T) {
	got, err := Compute(Input{
		Lines: []Line{
			{Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
			{Quantity: 1, UnitPrice: decimal.NewFromInt(30)},
		},
		Discount:     dec("10"),
		DiscountType: str("AMOUNT"),
		VAT:          dec("7.5"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.MaterialSubtotal.Equal(decimal.NewFromInt(130)) {
		t.Fatalf("expected subtotal 130, got %s", got.MaterialSubtotal)
	}
	if !got.Discounted.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected discounted 120, got %s", got.Discounted)
	}
	if !got.VATAmount.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("expected vat 9, got %s", got.VATAmount)
	}
	if got.Total.StringFixed(2) != "129.00" {
		t.Fatalf("expected 129.00, got %s", got.Total.StringFixed(2))
	}
}

func TestComputePercentageDiscount(t *testing.T) {
	got, err := Compute(Input{
		ServiceCharge: dec("40"),
		Lines:         []Line{{Quantity: 4, UnitPrice: decimal.RequireFromString("25")}},
		Discount:      dec("25"),
		DiscountType:  str("percentage"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Total.StringFixed(2) != "115.00" {
		t.Fatalf("expected 115.00, got %s", got.Total.StringFixed(2))
	}
}

func TestComputeServiceChargeIsNotTaxed(t *testing.T) {
	got, err := Compute(Input{ServiceCharge: dec("200"), VAT: dec("10")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.VATAmount.IsZero() || got.Total.StringFixed(2) != "200.00" {
		t.Fatalf("expected untaxed 200.00, got vat %s total %s", got.VATAmount, got.Total)
	}
}

func TestComputeVATSkippedWhenDiscountConsumesSubtotal(t *testing.T) {
	got, err := Compute(Input{
		ServiceCharge: dec("10"),
		Lines:         []Line{{Quantity: 1, UnitPrice: decimal.NewFromInt(50)}},
		Discount:      dec("50"),
		DiscountType:  str("AMOUNT"),
		VAT:           dec("20"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.VATAmount.IsZero() {
		t.Fatalf("expected no vat, got %s", got.VATAmount)
	}
	if got.Total.StringFixed(2) != "10.00" {
		t.Fatalf("expected 10.00, got %s", got.Total.StringFixed(2))
	}
}

func TestComputeRoundsTotal(t *testing.T) {
	got, err := Compute(Input{
		Lines: []Line{{Quantity: 3, UnitPrice: decimal.RequireFromString("3.33")}},
		VAT:   dec("7"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 9.99 * 1.07 = 10.6893
	if got.Total.String() != "10.69" {
		t.Fatalf("expected 10.69, got %s", got.Total)
	}
}

func TestComputeErrors(t *testing.T) {
	lines := []Line{{Quantity: 1, UnitPrice: decimal.NewFromInt(100)}}
	cases := []struct {
		name string
		in   Input
		want error
	}{
		{"negative service charge", Input{ServiceCharge: dec("-1")}, ErrNegativeServiceCharge},
		{"discount without type", Input{Lines: lines, Discount: dec("5")}, ErrIncompleteDiscount},
		{"type without discount", Input{Lines: lines, DiscountType: str("AMOUNT")}, ErrIncompleteDiscount},
		{"unknown type", Input{Lines: lines, Discount: dec("5"), DiscountType: str("COUPON")}, ErrInvalidDiscountType},
		{"percentage above 100", Input{Lines: lines, Discount: dec("150"), DiscountType: str("PERCENTAGE")}, ErrDiscountOutOfRange},
		{"negative percentage", Input{Lines: lines, Discount: dec("-1"), DiscountType: str("PERCENTAGE")}, ErrDiscountOutOfRange},
		{"negative amount", Input{Lines: lines, Discount: dec("-1"), DiscountType: str("AMOUNT")}, ErrDiscountOutOfRange},
		{"percentage on empty subtotal", Input{ServiceCharge: dec("50"), Discount: dec("10"), DiscountType: str("PERCENTAGE")}, ErrDiscountExceedsSubtotal},
		{"amount above subtotal", Input{Lines: lines, Discount: dec("100.01"), DiscountType: str("AMOUNT")}, ErrDiscountExceedsSubtotal},
		{"vat above 100", Input{Lines: lines, VAT: dec("101")}, ErrVATOutOfRange},
		{"negative vat", Input{Lines: lines, VAT: dec("-0.5")}, ErrVATOutOfRange},
		{"service charge with three decimals", Input{ServiceCharge: dec("10.005")}, ErrTooManyDecimals},
		{"discount with three decimals", Input{Lines: lines, Discount: dec("10.005"), DiscountType: str("AMOUNT")}, ErrTooManyDecimals},
		{"vat with three decimals", Input{Lines: lines, VAT: dec("7.125")}, ErrTooManyDecimals},
		{"service charge too large", Input{ServiceCharge: dec("1e15")}, ErrAmountTooLarge},
		{"total too large", Input{Lines: []Line{{Quantity: 999999999, UnitPrice: decimal.RequireFromString("9999999.99")}}}, ErrAmountTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Compute(tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestComputeAcceptsTrailingZeros(t *testing.T) {
	got, err := Compute(Input{ServiceCharge: dec("10.500"), VAT: dec("7.50")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Total.StringFixed(2) != "10.50" {
		t.Fatalf("expected 10.50, got %s", got.Total.StringFixed(2))
	}
}

func TestComputeLargestStorableTotal(t *testing.T) {
	got, err := Compute(Input{ServiceCharge: dec("9999999999.99")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Total.String() != "9999999999.99" {
		t.Fatalf("expected 9999999999.99, got %s", got.Total)
	}
}

func TestComputeDeterministic(t *testing.T) {
	in := Input{
		ServiceCharge: dec("12.34"),
		Lines:         []Line{{Quantity: 7, UnitPrice: decimal.RequireFromString("19.99")}},
		Discount:      dec("12.5"),
		DiscountType:  str("PERCENTAGE"),
		VAT:           dec("16"),
	}
	first, err := Compute(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Compute(in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !again.Total.Equal(first.Total) {
			t.Fatalf("non-deterministic total: %s vs %s", again.Total, first.Total)
		}
	}
}

func TestDiscountNeverDrivesSubtotalNegative(t *testing.T) {
	for sub := int64(0); sub <= 50; sub += 5 {
		for disc := int64(0); disc <= 60; disc += 3 {
			for _, kind := range []string{DiscountAmount, DiscountPercentage} {
				var lines []Line
				if sub > 0 {
					lines = []Line{{Quantity: 1, UnitPrice: decimal.NewFromInt(sub)}}
				}
				got, err := Compute(Input{Lines: lines, Discount: dec(decimal.NewFromInt(disc).String()), DiscountType: str(kind), VAT: dec("10")})
				if err != nil {
					continue
				}
				if got.Discounted.IsNegative() {
					t.Fatalf("negative subtotal for sub=%d disc=%d kind=%s", sub, disc, kind)
				}
				if !got.Discounted.IsPositive() && !got.VATAmount.IsZero() {
					t.Fatalf("vat applied to non-positive subtotal for sub=%d disc=%d kind=%s", sub, disc, kind)
				}
			}
		}
	}
}
