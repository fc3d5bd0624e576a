package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	items := []LineItem{
		{Description: "Freight", Quantity: 2, UnitPriceCents: 12500},
		{Description: "Handling", Quantity: 1, UnitPriceCents: 999},
	}
	totals := Compute(items, 2300)
	assert.Equal(t, int64(25999), totals.SubtotalCents)
	assert.Equal(t, int64(5980), totals.TaxCents, "5979.77 rounds up")
	assert.Equal(t, int64(31979), totals.TotalCents)

	assert.Equal(t, Totals{}, Compute(nil, 2300))
}

func TestNormalizeItems(t *testing.T) {
	items, err := NormalizeItems([]LineItem{{Description: " Freight ", Quantity: 3, UnitPriceCents: 100}})
	require.NoError(t, err)
	assert.Equal(t, "Freight", items[0].Description)
	assert.Equal(t, int64(300), items[0].AmountCents)

	_, err = NormalizeItems([]LineItem{{Description: "x", Quantity: 0, UnitPriceCents: 1}})
	assert.EqualError(t, err, "line item quantity must be greater than zero")

	_, err = NormalizeItems([]LineItem{{Description: "x", Quantity: 1, UnitPriceCents: -1}})
	assert.Error(t, err)

	_, err = NormalizeItems([]LineItem{{Description: " ", Quantity: 1}})
	assert.Error(t, err)
}

func TestNormalizeCurrency(t *testing.T) {
	c, err := NormalizeCurrency(" eur ")
	require.NoError(t, err)
	assert.Equal(t, "EUR", c)

	c, err = NormalizeCurrency("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCurrency, c)

	_, err = NormalizeCurrency("EURO")
	assert.Error(t, err)
	_, err = NormalizeCurrency("E1R")
	assert.Error(t, err)
}

func TestValidateTaxRate(t *testing.T) {
	assert.NoError(t, ValidateTaxRate(0))
	assert.NoError(t, ValidateTaxRate(10000))
	assert.Error(t, ValidateTaxRate(-1))
	assert.Error(t, ValidateTaxRate(10001))
}
