package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradedocs/tradedocs/internal/numbering"
	"github.com/tradedocs/tradedocs/internal/totals"
)

// Document is the persisted header of any business document: invoice,
// estimate, insurance estimate, plumber report, or work order. Monetary
// aggregates are snapshots of the last totals computation; they are rebuilt
// as a whole whenever the item list is replaced.
type Document struct {
	ID            int64                  `json:"id" db:"id"`
	DocType       numbering.DocumentType `json:"doc_type" db:"doc_type"`
	Number        string                 `json:"number" db:"number"`
	CompanyID     int64                  `json:"company_id" db:"company_id"`
	ClientName    string                 `json:"client_name" db:"client_name"`
	ClientAddress string                 `json:"client_address" db:"client_address"`
	ClientEmail   *string                `json:"client_email,omitempty" db:"client_email"`
	ClientPhone   *string                `json:"client_phone,omitempty" db:"client_phone"`
	Status        Status                 `json:"status" db:"status"`
	IssueDate     time.Time              `json:"issue_date" db:"issue_date"`
	DueDate       *time.Time             `json:"due_date,omitempty" db:"due_date"`
	ValidUntil    *time.Time             `json:"valid_until,omitempty" db:"valid_until"`

	TaxRate    float64 `json:"tax_rate" db:"tax_rate"`
	Discount   float64 `json:"discount" db:"discount"`
	OPPercent  float64 `json:"op_percent" db:"op_percent"`
	Shipping   float64 `json:"shipping" db:"shipping"`
	Deductible float64 `json:"deductible" db:"deductible"`

	Subtotal           float64 `json:"subtotal" db:"subtotal"`
	TaxAmount          float64 `json:"tax_amount" db:"tax_amount"`
	DiscountAmount     float64 `json:"discount_amount" db:"discount_amount"`
	OverheadProfit     float64 `json:"overhead_profit" db:"overhead_profit"`
	DepreciationAmount float64 `json:"depreciation_amount" db:"depreciation_amount"`
	ACVAmount          float64 `json:"acv_amount" db:"acv_amount"`
	RCVAmount          float64 `json:"rcv_amount" db:"rcv_amount"`
	Total              float64 `json:"total" db:"total"`

	Notes     *string    `json:"notes,omitempty" db:"notes"`
	SentAt    *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`

	Items []Item `json:"items,omitempty" db:"-"`
}

// Item is one stored line on a document. Derived fields (amount, tax,
// depreciation, acv) are computed snapshots, immutable once written.
type Item struct {
	ID          int64   `json:"id" db:"id"`
	DocumentID  int64   `json:"document_id" db:"document_id"`
	Description string  `json:"description" db:"description"`
	Quantity    float64 `json:"quantity" db:"quantity"`
	Unit        string  `json:"unit" db:"unit"`
	Rate        float64 `json:"rate" db:"rate"`
	TaxRate     float64 `json:"tax_rate" db:"tax_rate"`
	Category    *string `json:"category,omitempty" db:"category"`
	IsCredit    bool    `json:"is_credit" db:"is_credit"`

	DepreciationRate float64 `json:"depreciation_rate" db:"depreciation_rate"`
	RCVAmount        float64 `json:"rcv_amount" db:"rcv_amount"`

	Amount             float64 `json:"amount" db:"amount"`
	TaxAmount          float64 `json:"tax_amount" db:"tax_amount"`
	DepreciationAmount float64 `json:"depreciation_amount" db:"depreciation_amount"`
	ACVAmount          float64 `json:"acv_amount" db:"acv_amount"`
	LineOrder          int     `json:"line_order" db:"line_order"`
}

// ItemRequest is one submitted line on a create/replace request.
type ItemRequest struct {
	Description      string  `json:"description" validate:"required,max=500"`
	Quantity         float64 `json:"quantity"`
	Unit             string  `json:"unit" validate:"max=20"`
	Rate             float64 `json:"rate"`
	TaxRate          float64 `json:"tax_rate" validate:"gte=0,lte=100"`
	Category         *string `json:"category,omitempty" validate:"omitempty,max=100"`
	IsCredit         bool    `json:"is_credit"`
	DepreciationRate float64 `json:"depreciation_rate" validate:"gte=0,lte=100"`
	RCVAmount        float64 `json:"rcv_amount" validate:"gte=0"`
}

// CreateDocumentRequest creates a document with its initial item list. When
// Number is empty one is generated from the client address and the owning
// company's code.
type CreateDocumentRequest struct {
	DocType       string        `json:"doc_type" validate:"required,oneof=invoice estimate insurance_estimate plumber_report work_order"`
	CompanyID     int64         `json:"company_id" validate:"required,gt=0"`
	Number        string        `json:"number,omitempty" validate:"omitempty,max=50"`
	ClientName    string        `json:"client_name" validate:"required,max=200"`
	ClientAddress string        `json:"client_address" validate:"max=500"`
	ClientEmail   *string       `json:"client_email,omitempty" validate:"omitempty,email"`
	ClientPhone   *string       `json:"client_phone,omitempty" validate:"omitempty,max=50"`
	IssueDate     time.Time     `json:"issue_date"`
	DueDate       *time.Time    `json:"due_date,omitempty"`
	ValidUntil    *time.Time    `json:"valid_until,omitempty"`
	TaxRate       float64       `json:"tax_rate" validate:"gte=0,lte=100"`
	Discount      float64       `json:"discount" validate:"gte=0"`
	OPPercent     float64       `json:"op_percent" validate:"gte=0,lte=100"`
	Shipping      float64       `json:"shipping" validate:"gte=0"`
	Deductible    float64       `json:"deductible" validate:"gte=0"`
	Notes         *string       `json:"notes,omitempty"`
	Items         []ItemRequest `json:"items" validate:"dive"`
}

// ReplaceItemsRequest swaps a document's full item list. There is no partial
// patch; totals are rebuilt from scratch in the same transaction.
type ReplaceItemsRequest struct {
	Items []ItemRequest `json:"items" validate:"dive"`
}

// ChangeStatusRequest moves a document to a new lifecycle state.
type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ListDocumentsRequest filters and pages a document listing.
type ListDocumentsRequest struct {
	DocType   numbering.DocumentType
	Status    Status
	CompanyID int64
	Page      int
	PerPage   int
}

// PolicyFor returns the totals policy for a document type. Invoices apply a
// single document-level tax rate and require at least one item; estimates
// carry overhead & profit; insurance estimates add the depreciation chain.
func PolicyFor(docType numbering.DocumentType) totals.Policy {
	switch docType {
	case numbering.TypeInvoice:
		return totals.Policy{TaxMode: totals.TaxOnSubtotal, RequireItems: true}
	case numbering.TypeEstimate:
		return totals.Policy{TaxMode: totals.TaxPerItem, OverheadProfit: true}
	case numbering.TypeInsuranceEstimate:
		return totals.Policy{TaxMode: totals.TaxPerItem, InsuranceChain: true}
	default:
		return totals.Policy{TaxMode: totals.TaxPerItem}
	}
}

// toLineItems converts submitted rows into calculator inputs.
func toLineItems(reqs []ItemRequest) []totals.LineItem {
	items := make([]totals.LineItem, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, totals.LineItem{
			Description:      r.Description,
			Quantity:         decimal.NewFromFloat(r.Quantity),
			Unit:             r.Unit,
			Rate:             decimal.NewFromFloat(r.Rate),
			TaxRate:          decimal.NewFromFloat(r.TaxRate),
			IsCredit:         r.IsCredit,
			DepreciationRate: decimal.NewFromFloat(r.DepreciationRate),
			RCVAmount:        decimal.NewFromFloat(r.RCVAmount),
		})
	}
	return items
}

// toInputs converts document-level knobs into calculator inputs.
func toInputs(taxRate, discount, opPercent, shipping, deductible float64) totals.Inputs {
	return totals.Inputs{
		TaxRate:    decimal.NewFromFloat(taxRate),
		Discount:   decimal.NewFromFloat(discount),
		OPPercent:  decimal.NewFromFloat(opPercent),
		Shipping:   decimal.NewFromFloat(shipping),
		Deductible: decimal.NewFromFloat(deductible),
	}
}
