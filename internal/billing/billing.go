// Package billing holds the line item and totals arithmetic shared by
// invoices and quotes. Amounts are integer minor units (cents).
package billing

import (
	"strings"

	dErrors "opsdesk/pkg/domain-errors"
)

const (
	MaxLineItems      = 200
	MaxDescription    = 500
	MaxTaxRateBps     = 10000
	DefaultCurrency   = "USD"
	basisPointDivisor = 10000
)

// LineItem is one billed row. Quantity is in whole units.
type LineItem struct {
	Description    string `json:"description"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	AmountCents    int64  `json:"amountCents"`
}

// Totals are derived from line items and the tax rate; never set directly.
type Totals struct {
	SubtotalCents int64 `json:"subtotalCents"`
	TaxCents      int64 `json:"taxCents"`
	TotalCents    int64 `json:"totalCents"`
}

// NormalizeItems trims descriptions, checks each row and fills AmountCents.
func NormalizeItems(items []LineItem) ([]LineItem, error) {
	if len(items) > MaxLineItems {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "too many line items")
	}
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		item.Description = strings.TrimSpace(item.Description)
		if item.Description == "" {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "line item description is required")
		}
		if len(item.Description) > MaxDescription {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "line item description must be 500 characters or less")
		}
		if item.Quantity <= 0 {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "line item quantity must be greater than zero")
		}
		if item.UnitPriceCents < 0 {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "line item unit price cannot be negative")
		}
		item.AmountCents = item.Quantity * item.UnitPriceCents
		out = append(out, item)
	}
	return out, nil
}

// Compute sums the items and applies taxRateBps, rounding tax half up.
func Compute(items []LineItem, taxRateBps int) Totals {
	var subtotal int64
	for _, item := range items {
		subtotal += item.Quantity * item.UnitPriceCents
	}
	tax := (subtotal*int64(taxRateBps) + basisPointDivisor/2) / basisPointDivisor
	return Totals{SubtotalCents: subtotal, TaxCents: tax, TotalCents: subtotal + tax}
}

// ValidateTaxRate accepts 0..10000 basis points.
func ValidateTaxRate(bps int) error {
	if bps < 0 || bps > MaxTaxRateBps {
		return dErrors.New(dErrors.CodeInvariantViolation, "tax rate must be between 0 and 10000 basis points")
	}
	return nil
}

// NormalizeCurrency uppercases an ISO 4217 code; empty means DefaultCurrency.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	if len(code) != 3 {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "currency must be a 3-letter ISO 4217 code")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", dErrors.New(dErrors.CodeInvariantViolation, "currency must be a 3-letter ISO 4217 code")
		}
	}
	return code, nil
}

// CloneItems copies a slice so stored and returned documents do not share it.
func CloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
