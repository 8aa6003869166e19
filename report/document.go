package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/tradedocs/tradedocs/internal/documents"
	"github.com/tradedocs/tradedocs/internal/numbering"
)

var docTypeTitles = map[numbering.DocumentType]string{
	numbering.TypeInvoice:           "Invoice",
	numbering.TypeEstimate:          "Estimate",
	numbering.TypeInsuranceEstimate: "Insurance Estimate",
	numbering.TypePlumberReport:     "Plumber Report",
	numbering.TypeWorkOrder:         "Work Order",
}

// Renderer turns documents into PDFs through Gotenberg.
type Renderer struct {
	client *Client
	tmpl   *template.Template
}

// NewRenderer parses the document template and wires the Gotenberg client.
func NewRenderer(client *Client) (*Renderer, error) {
	tmpl, err := template.New("document").Funcs(template.FuncMap{
		"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	}).Parse(documentTemplate)
	if err != nil {
		return nil, fmt.Errorf("report: parse template: %w", err)
	}
	return &Renderer{client: client, tmpl: tmpl}, nil
}

type documentView struct {
	Title string
	Doc   *documents.Document

	ShowOP         bool
	ShowInsurance  bool
	ShowDeductible bool
	ShowTax        bool

	AfterDeductible float64
}

// RenderDocument renders a document into a PDF.
func (r *Renderer) RenderDocument(ctx context.Context, doc *documents.Document) ([]byte, error) {
	html, err := r.RenderHTML(doc)
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, html)
}

// RenderHTML produces the HTML layout without calling Gotenberg. Split out so
// the layout is testable offline.
func (r *Renderer) RenderHTML(doc *documents.Document) (string, error) {
	title, ok := docTypeTitles[doc.DocType]
	if !ok {
		title = "Document"
	}
	after := doc.Total - doc.Deductible
	if after < 0 {
		after = 0
	}
	view := documentView{
		Title:           title,
		Doc:             doc,
		ShowOP:          doc.OverheadProfit != 0,
		ShowInsurance:   doc.DocType == numbering.TypeInsuranceEstimate,
		ShowDeductible:  doc.Deductible != 0,
		ShowTax:         doc.TaxAmount != 0,
		AfterDeductible: after,
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("report: render document %s: %w", doc.Number, err)
	}
	return buf.String(), nil
}

const documentTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} {{.Doc.Number}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; color: #222; }
h1 { font-size: 20px; margin-bottom: 0; }
.number { color: #555; margin-top: 2px; }
table { width: 100%; border-collapse: collapse; margin-top: 16px; }
th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #ddd; }
th { background: #f4f4f4; }
td.num, th.num { text-align: right; }
.totals { margin-top: 12px; width: 40%; margin-left: auto; }
.totals td { border: none; padding: 3px 8px; }
.totals tr.grand td { border-top: 2px solid #222; font-weight: bold; }
.client { margin-top: 12px; }
.credit { color: #a00; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="number">{{.Doc.Number}} &middot; {{.Doc.IssueDate.Format "January 2, 2006"}}</div>
<div class="client">
<strong>{{.Doc.ClientName}}</strong><br>
{{.Doc.ClientAddress}}
</div>
<table>
<tr><th>Description</th><th class="num">Qty</th><th>Unit</th><th class="num">Rate</th><th class="num">Amount</th></tr>
{{range .Doc.Items}}
<tr{{if .IsCredit}} class="credit"{{end}}>
<td>{{.Description}}</td>
<td class="num">{{money .Quantity}}</td>
<td>{{.Unit}}</td>
<td class="num">{{money .Rate}}</td>
<td class="num">{{money .Amount}}</td>
</tr>
{{end}}
</table>
<table class="totals">
<tr><td>Subtotal</td><td class="num">{{money .Doc.Subtotal}}</td></tr>
{{if .ShowOP}}<tr><td>Overhead &amp; Profit</td><td class="num">{{money .Doc.OverheadProfit}}</td></tr>{{end}}
{{if .Doc.DiscountAmount}}<tr><td>Discount</td><td class="num">-{{money .Doc.DiscountAmount}}</td></tr>{{end}}
{{if .ShowTax}}<tr><td>Tax</td><td class="num">{{money .Doc.TaxAmount}}</td></tr>{{end}}
{{if .Doc.Shipping}}<tr><td>Shipping</td><td class="num">{{money .Doc.Shipping}}</td></tr>{{end}}
{{if .ShowInsurance}}
<tr><td>RCV</td><td class="num">{{money .Doc.RCVAmount}}</td></tr>
<tr><td>Depreciation</td><td class="num">-{{money .Doc.DepreciationAmount}}</td></tr>
<tr><td>ACV</td><td class="num">{{money .Doc.ACVAmount}}</td></tr>
{{end}}
<tr class="grand"><td>Total</td><td class="num">{{money .Doc.Total}}</td></tr>
{{if .ShowDeductible}}
<tr><td>Deductible</td><td class="num">{{money .Doc.Deductible}}</td></tr>
<tr><td>Due after deductible</td><td class="num">{{money .AfterDeductible}}</td></tr>
{{end}}
</table>
{{if .Doc.Notes}}<p>{{.Doc.Notes}}</p>{{end}}
</body>
</html>`
