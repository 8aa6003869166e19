// Package totals computes every monetary aggregate of a business document
// from its current line items and document-level inputs. It is pure: no I/O,
// no hidden state, deterministic for a given input.
package totals

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxMode selects how tax is derived for a document.
type TaxMode string

const (
	// TaxPerItem sums the tax carried by each line item.
	TaxPerItem TaxMode = "per_item"
	// TaxOnSubtotal applies a single document-level rate to the subtotal.
	TaxOnSubtotal TaxMode = "on_subtotal"
)

// Policy holds the per-document-type toggles. The arithmetic is shared; only
// the toggles differ between invoices, estimates, and insurance estimates.
type Policy struct {
	TaxMode        TaxMode
	OverheadProfit bool
	InsuranceChain bool
	RequireItems   bool
}

// LineItem is one billable row on a document.
type LineItem struct {
	Description string
	Quantity    decimal.Decimal
	Unit        string
	Rate        decimal.Decimal
	TaxRate     decimal.Decimal
	Category    string
	// IsCredit marks an explicit credit/adjustment row, the only case where a
	// negative rate is accepted.
	IsCredit bool

	// Insurance fields, ignored unless the policy enables the chain.
	DepreciationRate decimal.Decimal
	RCVAmount        decimal.Decimal
}

// Amount returns quantity x rate without rounding.
func (it LineItem) Amount() decimal.Decimal {
	return it.Quantity.Mul(it.Rate)
}

// TaxAmount returns the item tax rounded to 2 decimal places.
func (it LineItem) TaxAmount() decimal.Decimal {
	return round2(it.Amount().Mul(it.TaxRate).Div(hundred))
}

// DepreciationAmount returns rcv x depreciationRate/100 rounded to 2 places.
func (it LineItem) DepreciationAmount() decimal.Decimal {
	return round2(it.RCVAmount.Mul(it.DepreciationRate).Div(hundred))
}

// ACVAmount is the actual cash value: replacement cost less depreciation.
func (it LineItem) ACVAmount() decimal.Decimal {
	return it.RCVAmount.Sub(it.DepreciationAmount())
}

// Inputs are the document-level knobs that feed the aggregate.
type Inputs struct {
	TaxRate    decimal.Decimal
	Discount   decimal.Decimal
	OPPercent  decimal.Decimal
	Shipping   decimal.Decimal
	Deductible decimal.Decimal
}

// Totals is the aggregate over a line item collection. It is rebuilt as a
// whole whenever the item list changes; no field is independently mutable.
type Totals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	OverheadProfit decimal.Decimal
	Shipping       decimal.Decimal

	DepreciationAmount decimal.Decimal
	ACVAmount          decimal.Decimal
	RCVAmount          decimal.Decimal
	Deductible         decimal.Decimal

	Total decimal.Decimal
}

// AmountAfterDeductible is the presentation figure for insurance documents:
// the grand total less the flat deductible. The deductible is never folded
// into Total itself.
func (t Totals) AmountAfterDeductible() decimal.Decimal {
	return t.Total.Sub(t.Deductible)
}

// ValidationError reports the offending item and field for a rejected input.
// ItemIndex is -1 for document-level failures.
type ValidationError struct {
	ItemIndex int
	Field     string
	Message   string
}

func (e *ValidationError) Error() string {
	if e.ItemIndex < 0 {
		return fmt.Sprintf("totals: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("totals: item %d: %s: %s", e.ItemIndex, e.Field, e.Message)
}

var hundred = decimal.NewFromInt(100)

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Compute derives the full aggregate. Section values (subtotal, tax, O&P,
// discount, shipping) are each rounded to 2 decimal places and the rounded
// sections are summed; the sum itself is not rounded again. A term not
// applicable to the policy contributes zero.
func Compute(items []LineItem, in Inputs, p Policy) (Totals, error) {
	if err := validate(items, p); err != nil {
		return Totals{}, err
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Amount())
	}
	subtotal = round2(subtotal)

	discount := round2(in.Discount)
	shipping := round2(in.Shipping)

	var tax decimal.Decimal
	switch p.TaxMode {
	case TaxOnSubtotal:
		// Discount reduces the tax base. The base never goes negative.
		base := subtotal.Sub(discount)
		if base.IsNegative() {
			base = decimal.Zero
		}
		tax = round2(base.Mul(in.TaxRate).Div(hundred))
	default:
		for _, it := range items {
			tax = tax.Add(it.TaxAmount())
		}
	}

	var op decimal.Decimal
	if p.OverheadProfit {
		op = round2(subtotal.Mul(in.OPPercent).Div(hundred))
	}

	out := Totals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount,
		OverheadProfit: op,
		Shipping:       shipping,
	}

	if p.InsuranceChain {
		for _, it := range items {
			out.DepreciationAmount = out.DepreciationAmount.Add(it.DepreciationAmount())
			out.ACVAmount = out.ACVAmount.Add(it.ACVAmount())
			out.RCVAmount = out.RCVAmount.Add(it.RCVAmount)
		}
		out.Deductible = round2(in.Deductible)
	}

	out.Total = subtotal.Add(tax).Add(op).Sub(discount).Add(shipping)
	return out, nil
}

func validate(items []LineItem, p Policy) error {
	if p.RequireItems && len(items) == 0 {
		return &ValidationError{ItemIndex: -1, Field: "items", Message: "at least one line item is required"}
	}
	for i, it := range items {
		if !it.Quantity.IsPositive() {
			return &ValidationError{ItemIndex: i, Field: "quantity", Message: "must be greater than zero"}
		}
		if it.Rate.IsNegative() && !it.IsCredit {
			return &ValidationError{ItemIndex: i, Field: "rate", Message: "negative rate requires the credit flag"}
		}
		if p.InsuranceChain {
			if it.RCVAmount.IsNegative() {
				return &ValidationError{ItemIndex: i, Field: "rcv_amount", Message: "must not be negative"}
			}
			if it.DepreciationRate.IsNegative() || it.DepreciationRate.GreaterThan(hundred) {
				return &ValidationError{ItemIndex: i, Field: "depreciation_rate", Message: "must be between 0 and 100"}
			}
		}
	}
	return nil
}
