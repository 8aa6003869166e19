package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradedocs/tradedocs/internal/numbering"
)

func TestReduceAddItemRecomputesTotals(t *testing.T) {
	draft := NewDraft(numbering.TypeEstimate, 1)

	next, err := Reduce(draft, AddItem{Item: ItemRequest{
		Description: "Drywall repair", Quantity: 5, Unit: "hr", Rate: 20, TaxRate: 10,
	}})
	require.NoError(t, err)
	assert.Equal(t, 100.0, next.Totals.Subtotal)
	assert.Equal(t, 10.0, next.Totals.TaxAmount)
	assert.Equal(t, 110.0, next.Totals.Total)

	// Input draft stays untouched.
	assert.Empty(t, draft.Items)
	assert.Zero(t, draft.Totals.Total)
}

func TestReduceUpdateAndRemoveItem(t *testing.T) {
	draft := NewDraft(numbering.TypeEstimate, 1)

	next, err := Reduce(draft, AddItem{Item: ItemRequest{Description: "A", Quantity: 1, Rate: 50}})
	require.NoError(t, err)
	next, err = Reduce(next, AddItem{Item: ItemRequest{Description: "B", Quantity: 1, Rate: 25}})
	require.NoError(t, err)

	next, err = Reduce(next, UpdateItem{Index: 1, Item: ItemRequest{Description: "B2", Quantity: 2, Rate: 25}})
	require.NoError(t, err)
	assert.Equal(t, 100.0, next.Totals.Subtotal)

	next, err = Reduce(next, RemoveItem{Index: 0})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, "B2", next.Items[0].Description)
	assert.Equal(t, 50.0, next.Totals.Subtotal)
}

func TestReduceRejectsOutOfRangeIndex(t *testing.T) {
	draft := NewDraft(numbering.TypeEstimate, 1)

	_, err := Reduce(draft, RemoveItem{Index: 0})
	assert.ErrorIs(t, err, ErrBadCommand)

	_, err = Reduce(draft, UpdateItem{Index: 3, Item: ItemRequest{Description: "X", Quantity: 1, Rate: 1}})
	assert.ErrorIs(t, err, ErrBadCommand)
}

func TestReduceSetRatesAndClient(t *testing.T) {
	draft := NewDraft(numbering.TypeInvoice, 1)

	next, err := Reduce(draft, AddItem{Item: ItemRequest{Description: "Labor", Quantity: 2, Rate: 50}})
	require.NoError(t, err)

	next, err = Reduce(next, SetRates{TaxRate: 10, Discount: 20})
	require.NoError(t, err)
	// Invoice tax applies to the discounted base.
	assert.Equal(t, 20.0, next.Totals.DiscountAmount)
	assert.Equal(t, 8.0, next.Totals.TaxAmount)
	assert.Equal(t, 88.0, next.Totals.Total)

	next, err = Reduce(next, SetClient{Name: "Jane Holder", Address: "123 Main St"})
	require.NoError(t, err)
	assert.Equal(t, "Jane Holder", next.ClientName)
}

func TestReduceEmptyInvoiceDraftAllowed(t *testing.T) {
	draft := NewDraft(numbering.TypeInvoice, 1)

	next, err := Reduce(draft, ClearItems{})
	require.NoError(t, err)
	assert.Zero(t, next.Totals.Total)
}

func TestDraftToCreateRequest(t *testing.T) {
	draft := NewDraft(numbering.TypeEstimate, 7)
	next, err := Reduce(draft, AddItem{Item: ItemRequest{Description: "Trim", Quantity: 1, Rate: 30}})
	require.NoError(t, err)
	next, err = Reduce(next, SetClient{Name: "Sam Fields", Address: "9 Oak Ave"})
	require.NoError(t, err)

	req := next.ToCreateRequest()
	assert.Equal(t, "estimate", req.DocType)
	assert.Equal(t, int64(7), req.CompanyID)
	assert.Equal(t, "Sam Fields", req.ClientName)
	require.Len(t, req.Items, 1)
}
