package totals

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func item(qty, rate string) LineItem {
	return LineItem{Quantity: dec(qty), Rate: dec(rate)}
}

func TestItemAmountAndTax(t *testing.T) {
	it := LineItem{Quantity: dec("3"), Rate: dec("19.99"), TaxRate: dec("8.25")}
	assert.True(t, it.Amount().Equal(dec("59.97")))
	// 59.97 * 8.25 / 100 = 4.947525 -> 4.95
	assert.True(t, it.TaxAmount().Equal(dec("4.95")))
}

func TestComputeSubtotalSumsItemAmounts(t *testing.T) {
	items := []LineItem{item("2", "50"), item("1", "25"), item("0.5", "10")}
	got, err := Compute(items, Inputs{}, Policy{TaxMode: TaxPerItem})
	require.NoError(t, err)
	assert.True(t, got.Subtotal.Equal(dec("130")))
	assert.True(t, got.Total.Equal(dec("130")))
}

func TestComputeEstimateScenario(t *testing.T) {
	// Two items, 10% O&P, flat discount of 5, no tax.
	items := []LineItem{item("2", "50"), item("1", "25")}
	in := Inputs{OPPercent: dec("10"), Discount: dec("5")}
	got, err := Compute(items, in, Policy{TaxMode: TaxPerItem, OverheadProfit: true})
	require.NoError(t, err)
	assert.True(t, got.Subtotal.Equal(dec("125")))
	assert.True(t, got.OverheadProfit.Equal(dec("12.5")))
	assert.True(t, got.Total.Equal(dec("132.5")), "got %s", got.Total)
}

func TestComputeDocumentLevelTaxAfterDiscount(t *testing.T) {
	items := []LineItem{item("1", "100")}
	in := Inputs{TaxRate: dec("10"), Discount: dec("20")}
	got, err := Compute(items, in, Policy{TaxMode: TaxOnSubtotal, RequireItems: true})
	require.NoError(t, err)
	// Tax base is subtotal less discount: (100-20) * 10% = 8.
	assert.True(t, got.TaxAmount.Equal(dec("8")))
	assert.True(t, got.Total.Equal(dec("88")))
}

func TestComputeTaxBaseNeverNegative(t *testing.T) {
	items := []LineItem{item("1", "10")}
	in := Inputs{TaxRate: dec("10"), Discount: dec("50")}
	got, err := Compute(items, in, Policy{TaxMode: TaxOnSubtotal})
	require.NoError(t, err)
	assert.True(t, got.TaxAmount.IsZero())
	assert.True(t, got.Total.Equal(dec("-40")))
}

func TestComputePerItemTaxSumsRoundedItemTaxes(t *testing.T) {
	items := []LineItem{
		{Quantity: dec("1"), Rate: dec("10.005"), TaxRate: dec("10")},
		{Quantity: dec("1"), Rate: dec("10.005"), TaxRate: dec("10")},
	}
	got, err := Compute(items, Inputs{}, Policy{TaxMode: TaxPerItem})
	require.NoError(t, err)
	// Each item tax rounds to 1.00 before summing.
	assert.True(t, got.TaxAmount.Equal(dec("2")))
}

func TestComputeInsuranceChain(t *testing.T) {
	items := []LineItem{{
		Quantity:         dec("1"),
		Rate:             dec("1000"),
		RCVAmount:        dec("1000"),
		DepreciationRate: dec("20"),
	}}
	in := Inputs{Deductible: dec("500")}
	got, err := Compute(items, in, Policy{TaxMode: TaxPerItem, InsuranceChain: true})
	require.NoError(t, err)
	assert.True(t, got.DepreciationAmount.Equal(dec("200")))
	assert.True(t, got.ACVAmount.Equal(dec("800")))
	assert.True(t, got.RCVAmount.Equal(dec("1000")))
	// Deductible is carried but never folded into the total.
	assert.True(t, got.Total.Equal(dec("1000")))
	assert.True(t, got.AmountAfterDeductible().Equal(dec("500")))
}

func TestComputeShipping(t *testing.T) {
	items := []LineItem{item("1", "40")}
	got, err := Compute(items, Inputs{Shipping: dec("9.99")}, Policy{TaxMode: TaxPerItem})
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(dec("49.99")))
}

func TestComputeZeroItems(t *testing.T) {
	// Estimates permit an empty draft; invoices do not.
	got, err := Compute(nil, Inputs{}, Policy{TaxMode: TaxPerItem})
	require.NoError(t, err)
	assert.True(t, got.Subtotal.IsZero())
	assert.True(t, got.Total.IsZero())

	_, err = Compute(nil, Inputs{}, Policy{TaxMode: TaxOnSubtotal, RequireItems: true})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, -1, verr.ItemIndex)
	assert.Equal(t, "items", verr.Field)
}

func TestComputeRejectsBadItems(t *testing.T) {
	cases := []struct {
		name  string
		item  LineItem
		field string
	}{
		{"zero quantity", LineItem{Quantity: dec("0"), Rate: dec("10")}, "quantity"},
		{"negative quantity", LineItem{Quantity: dec("-1"), Rate: dec("10")}, "quantity"},
		{"negative rate without credit flag", LineItem{Quantity: dec("1"), Rate: dec("-10")}, "rate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compute([]LineItem{tc.item}, Inputs{}, Policy{TaxMode: TaxPerItem})
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, 0, verr.ItemIndex)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestComputeAcceptsCreditRows(t *testing.T) {
	items := []LineItem{
		item("1", "100"),
		{Quantity: dec("1"), Rate: dec("-25"), IsCredit: true, Description: "goodwill credit"},
	}
	got, err := Compute(items, Inputs{}, Policy{TaxMode: TaxPerItem})
	require.NoError(t, err)
	assert.True(t, got.Subtotal.Equal(dec("75")))
}

func TestComputeIsIdempotent(t *testing.T) {
	items := []LineItem{item("3", "33.33"), {Quantity: dec("2"), Rate: dec("7.77"), TaxRate: dec("6")}}
	in := Inputs{Discount: dec("1.5"), Shipping: dec("4")}
	p := Policy{TaxMode: TaxPerItem}
	first, err := Compute(items, in, p)
	require.NoError(t, err)
	second, err := Compute(items, in, p)
	require.NoError(t, err)
	assert.True(t, first.Total.Equal(second.Total))
	assert.True(t, first.TaxAmount.Equal(second.TaxAmount))
}
