package documents

import (
	"errors"
	"fmt"

	"github.com/tradedocs/tradedocs/internal/numbering"
	"github.com/tradedocs/tradedocs/internal/totals"
)

// Draft is an in-progress document held by a client between edits. It is a
// plain value: every edit goes through Reduce, which returns a new draft with
// totals recomputed, so no ambient state or render flags are involved.
type Draft struct {
	DocType       numbering.DocumentType `json:"doc_type"`
	CompanyID     int64                  `json:"company_id"`
	ClientName    string                 `json:"client_name"`
	ClientAddress string                 `json:"client_address"`
	TaxRate       float64                `json:"tax_rate"`
	Discount      float64                `json:"discount"`
	OPPercent     float64                `json:"op_percent"`
	Shipping      float64                `json:"shipping"`
	Deductible    float64                `json:"deductible"`
	Items         []ItemRequest          `json:"items"`

	Totals DraftTotals `json:"totals"`
}

// DraftTotals is the recomputed aggregate carried on every draft revision.
type DraftTotals struct {
	Subtotal           float64 `json:"subtotal"`
	TaxAmount          float64 `json:"tax_amount"`
	DiscountAmount     float64 `json:"discount_amount"`
	OverheadProfit     float64 `json:"overhead_profit"`
	DepreciationAmount float64 `json:"depreciation_amount"`
	ACVAmount          float64 `json:"acv_amount"`
	RCVAmount          float64 `json:"rcv_amount"`
	Total              float64 `json:"total"`
}

// ErrBadCommand indicates a command that cannot apply to the draft.
var ErrBadCommand = errors.New("documents: bad draft command")

// Command mutates a draft through Reduce.
type Command interface {
	apply(d *Draft) error
}

// SetClient updates the client block.
type SetClient struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (c SetClient) apply(d *Draft) error {
	d.ClientName = c.Name
	d.ClientAddress = c.Address
	return nil
}

// AddItem appends a line item.
type AddItem struct {
	Item ItemRequest
}

func (c AddItem) apply(d *Draft) error {
	d.Items = append(d.Items, c.Item)
	return nil
}

// UpdateItem replaces the line item at Index.
type UpdateItem struct {
	Index int
	Item  ItemRequest
}

func (c UpdateItem) apply(d *Draft) error {
	if c.Index < 0 || c.Index >= len(d.Items) {
		return fmt.Errorf("%w: item index %d out of range", ErrBadCommand, c.Index)
	}
	d.Items[c.Index] = c.Item
	return nil
}

// RemoveItem deletes the line item at Index.
type RemoveItem struct {
	Index int
}

func (c RemoveItem) apply(d *Draft) error {
	if c.Index < 0 || c.Index >= len(d.Items) {
		return fmt.Errorf("%w: item index %d out of range", ErrBadCommand, c.Index)
	}
	d.Items = append(d.Items[:c.Index], d.Items[c.Index+1:]...)
	return nil
}

// ClearItems drops every line item.
type ClearItems struct{}

func (ClearItems) apply(d *Draft) error {
	d.Items = nil
	return nil
}

// SetRates updates the document-level knobs.
type SetRates struct {
	TaxRate    float64 `json:"tax_rate"`
	Discount   float64 `json:"discount"`
	OPPercent  float64 `json:"op_percent"`
	Shipping   float64 `json:"shipping"`
	Deductible float64 `json:"deductible"`
}

func (c SetRates) apply(d *Draft) error {
	d.TaxRate = c.TaxRate
	d.Discount = c.Discount
	d.OPPercent = c.OPPercent
	d.Shipping = c.Shipping
	d.Deductible = c.Deductible
	return nil
}

// NewDraft starts an empty draft for the type.
func NewDraft(docType numbering.DocumentType, companyID int64) Draft {
	return Draft{DocType: docType, CompanyID: companyID}
}

// Reduce applies a command and returns the next draft revision with totals
// recomputed. The input draft is not mutated. Validation failures from the
// totals calculator surface unchanged; drafts tolerate empty item lists even
// for invoices, since the item requirement is enforced at creation.
func Reduce(d Draft, cmd Command) (Draft, error) {
	next := d
	next.Items = make([]ItemRequest, len(d.Items))
	copy(next.Items, d.Items)

	if err := cmd.apply(&next); err != nil {
		return d, err
	}

	policy := PolicyFor(next.DocType)
	policy.RequireItems = false
	tot, err := totals.Compute(toLineItems(next.Items), toInputs(next.TaxRate, next.Discount, next.OPPercent, next.Shipping, next.Deductible), policy)
	if err != nil {
		return d, err
	}
	next.Totals = DraftTotals{
		Subtotal:           tot.Subtotal.InexactFloat64(),
		TaxAmount:          tot.TaxAmount.InexactFloat64(),
		DiscountAmount:     tot.DiscountAmount.InexactFloat64(),
		OverheadProfit:     tot.OverheadProfit.InexactFloat64(),
		DepreciationAmount: tot.DepreciationAmount.InexactFloat64(),
		ACVAmount:          tot.ACVAmount.InexactFloat64(),
		RCVAmount:          tot.RCVAmount.InexactFloat64(),
		Total:              tot.Total.InexactFloat64(),
	}
	return next, nil
}

// ToCreateRequest converts the draft into a creation request.
func (d Draft) ToCreateRequest() CreateDocumentRequest {
	return CreateDocumentRequest{
		DocType:       string(d.DocType),
		CompanyID:     d.CompanyID,
		ClientName:    d.ClientName,
		ClientAddress: d.ClientAddress,
		TaxRate:       d.TaxRate,
		Discount:      d.Discount,
		OPPercent:     d.OPPercent,
		Shipping:      d.Shipping,
		Deductible:    d.Deductible,
		Items:         d.Items,
	}
}
