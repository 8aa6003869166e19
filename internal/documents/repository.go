package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradedocs/tradedocs/internal/numbering"
	"github.com/tradedocs/tradedocs/internal/platform/db"
)

var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("documents: not found")
	// ErrDuplicateNumber indicates the (doc_type, number) pair is taken.
	ErrDuplicateNumber = errors.New("documents: number already exists")
	// ErrInvalidStatus indicates an illegal lifecycle transition.
	ErrInvalidStatus = errors.New("documents: invalid status transition")
)

// Repository is the persistence surface for documents. It doubles as the
// numbering store: sequence counts and existence checks read the same table
// the documents are written to.
type Repository interface {
	numbering.Store

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Document, error)
	GetByNumber(ctx context.Context, docType numbering.DocumentType, number string) (*Document, error)
	List(ctx context.Context, req ListDocumentsRequest) ([]Document, int, error)
	UpdateStatus(ctx context.Context, id int64, status Status, sentAt, paidAt *time.Time) error
	Delete(ctx context.Context, id int64) error

	MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int64, error)
	ExpireSentEstimates(ctx context.Context, asOf time.Time) (int64, error)
}

// TxRepository exposes the operations that must share one transaction:
// header insert, item replacement, and the totals snapshot that follows it.
type TxRepository interface {
	CreateDocument(ctx context.Context, doc Document) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	DeleteItems(ctx context.Context, documentID int64) error
	UpdateTotals(ctx context.Context, doc Document) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const documentColumns = `id, doc_type, number, company_id, client_name, client_address, client_email, client_phone,
status, issue_date, due_date, valid_until, tax_rate, discount, op_percent, shipping, deductible,
subtotal, tax_amount, discount_amount, overhead_profit, depreciation_amount, acv_amount, rcv_amount, total,
notes, sent_at, paid_at, created_at, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(
		&d.ID, &d.DocType, &d.Number, &d.CompanyID, &d.ClientName, &d.ClientAddress, &d.ClientEmail, &d.ClientPhone,
		&d.Status, &d.IssueDate, &d.DueDate, &d.ValidUntil, &d.TaxRate, &d.Discount, &d.OPPercent, &d.Shipping, &d.Deductible,
		&d.Subtotal, &d.TaxAmount, &d.DiscountAmount, &d.OverheadProfit, &d.DepreciationAmount, &d.ACVAmount, &d.RCVAmount, &d.Total,
		&d.Notes, &d.SentAt, &d.PaidAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	items, err := r.loadItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	doc.Items = items
	return doc, nil
}

func (r *repository) GetByNumber(ctx context.Context, docType numbering.DocumentType, number string) (*Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE doc_type = $1 AND number = $2`, docType, number))
	if err != nil {
		return nil, err
	}
	items, err := r.loadItems(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	doc.Items = items
	return doc, nil
}

func (r *repository) loadItems(ctx context.Context, documentID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, document_id, description, quantity, unit, rate, tax_rate, category, is_credit,
depreciation_rate, rcv_amount, amount, tax_amount, depreciation_amount, acv_amount, line_order
FROM document_items WHERE document_id = $1 ORDER BY line_order, id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.DocumentID, &it.Description, &it.Quantity, &it.Unit, &it.Rate, &it.TaxRate,
			&it.Category, &it.IsCredit, &it.DepreciationRate, &it.RCVAmount, &it.Amount, &it.TaxAmount,
			&it.DepreciationAmount, &it.ACVAmount, &it.LineOrder); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListDocumentsRequest) ([]Document, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if req.DocType != "" {
		where += " AND doc_type = " + arg(req.DocType)
	}
	if req.Status != "" {
		where += " AND status = " + arg(req.Status)
	}
	if req.CompanyID > 0 {
		where += " AND company_id = " + arg(req.CompanyID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM documents"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	query := `SELECT ` + documentColumns + ` FROM documents` + where +
		" ORDER BY created_at DESC, id DESC LIMIT " + arg(perPage) + " OFFSET " + arg((page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	return docs, total, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status, sentAt, paidAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE documents SET status = $2,
sent_at = COALESCE($3, sent_at), paid_at = COALESCE($4, paid_at), updated_at = now()
WHERE id = $1`, id, status, sentAt, paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkOverdueInvoices flips pending invoices past their due date.
func (r *repository) MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE documents SET status = $1, updated_at = now()
WHERE doc_type = $2 AND status = $3 AND due_date IS NOT NULL AND due_date < $4`,
		StatusOverdue, numbering.TypeInvoice, StatusPending, asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ExpireSentEstimates expires sent estimates past their validity window.
func (r *repository) ExpireSentEstimates(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE documents SET status = $1, updated_at = now()
WHERE doc_type IN ($2, $3) AND status = $4 AND valid_until IS NOT NULL AND valid_until < $5`,
		StatusExpired, numbering.TypeEstimate, numbering.TypeInsuranceEstimate, StatusSent, asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ============================================================================
// NUMBERING STORE
// ============================================================================

// CountByTypeAndCompany counts stored documents whose number matches the
// PREFIX-*-COMPANYCODE-* pattern. This is a scan over persisted number
// strings, not a counter table.
func (r *repository) CountByTypeAndCompany(ctx context.Context, docType numbering.DocumentType, companyCode string) (int, error) {
	pattern := fmt.Sprintf("%s-%%-%s-%%", docType.Prefix(), companyCode)
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE doc_type = $1 AND number LIKE $2`,
		docType, pattern).Scan(&count)
	return count, err
}

func (r *repository) NumberExists(ctx context.Context, docType numbering.DocumentType, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE doc_type = $1 AND number = $2)`,
		docType, number).Scan(&exists)
	return exists, err
}

// MaxSequenceInYear returns the highest trailing sequence among the company's
// documents of the type created in the given two-digit year.
func (r *repository) MaxSequenceInYear(ctx context.Context, docType numbering.DocumentType, companyCode, yearSuffix string) (int, error) {
	pattern := fmt.Sprintf("%s-%%-%s-%%", docType.Prefix(), companyCode)
	var maxSeq int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(split_part(number, '-', 4)::int), 0)
FROM documents WHERE doc_type = $1 AND number LIKE $2 AND to_char(created_at, 'YY') = $3`,
		docType, pattern, yearSuffix).Scan(&maxSeq)
	return maxSeq, err
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

func (t *txRepo) CreateDocument(ctx context.Context, doc Document) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO documents (doc_type, number, company_id, client_name, client_address,
client_email, client_phone, status, issue_date, due_date, valid_until, tax_rate, discount, op_percent, shipping,
deductible, subtotal, tax_amount, discount_amount, overhead_profit, depreciation_amount, acv_amount, rcv_amount,
total, notes, sent_at, paid_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, now(), now())
RETURNING id`,
		doc.DocType, doc.Number, doc.CompanyID, doc.ClientName, doc.ClientAddress,
		doc.ClientEmail, doc.ClientPhone, doc.Status, doc.IssueDate, doc.DueDate, doc.ValidUntil,
		doc.TaxRate, doc.Discount, doc.OPPercent, doc.Shipping, doc.Deductible,
		doc.Subtotal, doc.TaxAmount, doc.DiscountAmount, doc.OverheadProfit,
		doc.DepreciationAmount, doc.ACVAmount, doc.RCVAmount, doc.Total,
		doc.Notes, doc.SentAt, doc.PaidAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateNumber
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO document_items (document_id, description, quantity, unit, rate, tax_rate,
category, is_credit, depreciation_rate, rcv_amount, amount, tax_amount, depreciation_amount, acv_amount, line_order)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
		item.DocumentID, item.Description, item.Quantity, item.Unit, item.Rate, item.TaxRate,
		item.Category, item.IsCredit, item.DepreciationRate, item.RCVAmount,
		item.Amount, item.TaxAmount, item.DepreciationAmount, item.ACVAmount, item.LineOrder,
	).Scan(&id)
	return id, err
}

func (t *txRepo) DeleteItems(ctx context.Context, documentID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM document_items WHERE document_id = $1`, documentID)
	return err
}

func (t *txRepo) UpdateTotals(ctx context.Context, doc Document) error {
	tag, err := t.tx.Exec(ctx, `UPDATE documents SET subtotal = $2, tax_amount = $3, discount_amount = $4,
overhead_profit = $5, depreciation_amount = $6, acv_amount = $7, rcv_amount = $8, total = $9, updated_at = now()
WHERE id = $1`,
		doc.ID, doc.Subtotal, doc.TaxAmount, doc.DiscountAmount, doc.OverheadProfit,
		doc.DepreciationAmount, doc.ACVAmount, doc.RCVAmount, doc.Total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
