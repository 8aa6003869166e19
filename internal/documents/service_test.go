package documents

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradedocs/tradedocs/internal/numbering"
	"github.com/tradedocs/tradedocs/internal/shared"
	_ "github.com/tradedocs/tradedocs/internal/testing/guard"
)

// memRepo is an in-memory Repository with the same uniqueness semantics as
// the postgres implementation.
type memRepo struct {
	mu     sync.Mutex
	docs   map[int64]*Document
	nextID int64

	existsErr error

	// dupInserts makes the next N CreateDocument calls report a number
	// collision, simulating a racing insert between the existence check and
	// the persist.
	dupInserts int
}

func newMemRepo() *memRepo {
	return &memRepo{docs: make(map[int64]*Document), nextID: 1}
}

func (r *memRepo) CountByTypeAndCompany(_ context.Context, docType numbering.DocumentType, companyCode string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.docs {
		if d.DocType == docType && strings.Contains(d.Number, "-"+companyCode+"-") {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) NumberExists(_ context.Context, docType numbering.DocumentType, number string) (bool, error) {
	if r.existsErr != nil {
		return false, r.existsErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.DocType == docType && d.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) MaxSequenceInYear(_ context.Context, docType numbering.DocumentType, companyCode, yearSuffix string) (int, error) {
	return 0, nil
}

type memTx struct{ repo *memRepo }

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memTx{repo: r})
}

func (t *memTx) CreateDocument(_ context.Context, doc Document) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if t.repo.dupInserts > 0 {
		t.repo.dupInserts--
		return 0, ErrDuplicateNumber
	}
	for _, d := range t.repo.docs {
		if d.DocType == doc.DocType && d.Number == doc.Number {
			return 0, ErrDuplicateNumber
		}
	}
	id := t.repo.nextID
	t.repo.nextID++
	doc.ID = id
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	stored := doc
	stored.Items = nil
	t.repo.docs[id] = &stored
	return id, nil
}

func (t *memTx) InsertItem(_ context.Context, item Item) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	doc, ok := t.repo.docs[item.DocumentID]
	if !ok {
		return 0, ErrNotFound
	}
	item.ID = int64(len(doc.Items) + 1)
	doc.Items = append(doc.Items, item)
	return item.ID, nil
}

func (t *memTx) DeleteItems(_ context.Context, documentID int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if doc, ok := t.repo.docs[documentID]; ok {
		doc.Items = nil
	}
	return nil
}

func (t *memTx) UpdateTotals(_ context.Context, doc Document) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	stored, ok := t.repo.docs[doc.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Subtotal = doc.Subtotal
	stored.TaxAmount = doc.TaxAmount
	stored.DiscountAmount = doc.DiscountAmount
	stored.OverheadProfit = doc.OverheadProfit
	stored.DepreciationAmount = doc.DepreciationAmount
	stored.ACVAmount = doc.ACVAmount
	stored.RCVAmount = doc.RCVAmount
	stored.Total = doc.Total
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) Get(_ context.Context, id int64) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *doc
	out.Items = append([]Item(nil), doc.Items...)
	return &out, nil
}

func (r *memRepo) GetByNumber(_ context.Context, docType numbering.DocumentType, number string) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.DocType == docType && d.Number == number {
			out := *d
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) List(_ context.Context, req ListDocumentsRequest) ([]Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Document
	for _, d := range r.docs {
		if req.DocType != "" && d.DocType != req.DocType {
			continue
		}
		out = append(out, *d)
	}
	return out, len(out), nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id int64, status Status, sentAt, paidAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	if sentAt != nil {
		doc.SentAt = sentAt
	}
	if paidAt != nil {
		doc.PaidAt = paidAt
	}
	return nil
}

func (r *memRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *memRepo) MarkOverdueInvoices(context.Context, time.Time) (int64, error) { return 0, nil }
func (r *memRepo) ExpireSentEstimates(context.Context, time.Time) (int64, error) { return 0, nil }

type stubDirectory struct {
	code string
	name string
}

func (d stubDirectory) CompanyRef(context.Context, int64) (string, string, error) {
	return d.code, d.name, nil
}

type stubLocker struct{ obtained int }

func (l *stubLocker) Obtain(context.Context, string, time.Duration) (func(), error) {
	l.obtained++
	return func() {}, nil
}

type memAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *memAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

func newTestService(repo *memRepo) (*Service, *stubLocker, *memAudit) {
	logger := slog.New(slog.DiscardHandler)
	locker := &stubLocker{}
	audit := &memAudit{}
	gen := numbering.NewGenerator(repo, logger)
	svc := NewService(repo, stubDirectory{code: "ABCD", name: "Anderson Plumbing Co"}, gen, locker, audit, nil, logger)
	return svc, locker, audit
}

func invoiceRequest() CreateDocumentRequest {
	return CreateDocumentRequest{
		DocType:       "invoice",
		CompanyID:     1,
		ClientName:    "Jane Holder",
		ClientAddress: "123 Main St, Springfield",
		TaxRate:       10,
		Items: []ItemRequest{
			{Description: "Labor", Quantity: 2, Unit: "hr", Rate: 50},
		},
	}
}

func TestCreateInvoiceGeneratesSequentialNumbers(t *testing.T) {
	repo := newMemRepo()
	svc, locker, audit := newTestService(repo)

	first, err := svc.Create(context.Background(), invoiceRequest())
	require.NoError(t, err)
	assert.Equal(t, "INV-0123-ABCD-1", first.Number)
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, 100.0, first.Subtotal)
	assert.Equal(t, 10.0, first.TaxAmount)
	assert.Equal(t, 110.0, first.Total)
	require.Len(t, first.Items, 1)
	assert.Equal(t, 100.0, first.Items[0].Amount)

	second, err := svc.Create(context.Background(), invoiceRequest())
	require.NoError(t, err)
	assert.Equal(t, "INV-0123-ABCD-2", second.Number)

	assert.Equal(t, 2, locker.obtained)
	assert.Contains(t, audit.actions, shared.AuditDocumentCreated)
}

func TestCreateUsesSuppliedNumber(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	req := invoiceRequest()
	req.Number = "INV-CUSTOM-77"
	doc, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "INV-CUSTOM-77", doc.Number)
}

func TestCreateFallsBackWhenStoreUnavailable(t *testing.T) {
	repo := newMemRepo()
	repo.existsErr = assert.AnError
	svc, _, _ := newTestService(repo)

	// The existence check fails, but inserting still works: the document gets
	// a timestamp fallback number instead of a structured one.
	doc, err := svc.Create(context.Background(), invoiceRequest())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.Number, "INV-"), doc.Number)
	assert.NotContains(t, doc.Number, "ABCD")
}

func TestCreateAdvancesPastExistingNumbers(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	seeded := &Document{DocType: numbering.TypeInvoice, Number: "INV-0500-ABCD-1", Status: StatusPending}
	seeded.ID = repo.nextID
	repo.nextID++
	repo.docs[seeded.ID] = seeded

	doc, err := svc.Create(context.Background(), invoiceRequest())
	require.NoError(t, err)
	// The seeded row advances the company count even at another address.
	assert.Equal(t, "INV-0123-ABCD-2", doc.Number)
}

func TestCreateRetriesOnInsertRace(t *testing.T) {
	repo := newMemRepo()
	repo.dupInserts = 1
	svc, _, _ := newTestService(repo)

	doc, err := svc.Create(context.Background(), invoiceRequest())
	require.NoError(t, err)
	assert.Equal(t, "INV-0123-ABCD-1", doc.Number)
}

func TestCreateExhaustsAttemptsOnPersistentCollision(t *testing.T) {
	repo := newMemRepo()
	repo.dupInserts = 10
	svc, _, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), invoiceRequest())
	assert.ErrorIs(t, err, numbering.ErrExhausted)
}

func TestCreateRejectsZeroItemInvoiceButNotEstimate(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	req := invoiceRequest()
	req.Items = nil
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)

	req = invoiceRequest()
	req.DocType = "estimate"
	req.Items = nil
	doc, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, doc.Status)
	assert.Zero(t, doc.Total)
	assert.True(t, strings.HasPrefix(doc.Number, "EST-"), doc.Number)
}

func TestCreateUnknownTypeFails(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	req := invoiceRequest()
	req.DocType = "receipt"
	_, err := svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, numbering.ErrUnknownType)
}

func TestReplaceItemsRebuildsTotals(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	doc, err := svc.Create(context.Background(), invoiceRequest())
	require.NoError(t, err)

	updated, err := svc.ReplaceItems(context.Background(), doc.ID, ReplaceItemsRequest{
		Items: []ItemRequest{
			{Description: "Labor", Quantity: 1, Unit: "hr", Rate: 75},
			{Description: "Parts", Quantity: 2, Unit: "ea", Rate: 25},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 125.0, updated.Subtotal)
	assert.Equal(t, 12.5, updated.TaxAmount)
	assert.Equal(t, 137.5, updated.Total)
	require.Len(t, updated.Items, 2)

	// Replacing with the same items is a no-op on the totals.
	again, err := svc.ReplaceItems(context.Background(), doc.ID, ReplaceItemsRequest{
		Items: []ItemRequest{
			{Description: "Labor", Quantity: 1, Unit: "hr", Rate: 75},
			{Description: "Parts", Quantity: 2, Unit: "ea", Rate: 25},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, updated.Total, again.Total)
}

func TestReplaceItemsCannotEmptyInvoice(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	doc, err := svc.Create(context.Background(), invoiceRequest())
	require.NoError(t, err)

	_, err = svc.ReplaceItems(context.Background(), doc.ID, ReplaceItemsRequest{})
	require.Error(t, err)

	// Stored totals are untouched after the rejected replace.
	current, err := svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Total, current.Total)
}

func TestChangeStatusEnforcesTable(t *testing.T) {
	repo := newMemRepo()
	svc, _, audit := newTestService(repo)

	doc, err := svc.Create(context.Background(), invoiceRequest())
	require.NoError(t, err)

	paid, err := svc.ChangeStatus(context.Background(), doc.ID, StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	_, err = svc.ChangeStatus(context.Background(), doc.ID, StatusPending)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Contains(t, audit.actions, shared.AuditDocumentStatus)
}

func TestChangeStatusStampsSentAt(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	req := invoiceRequest()
	req.DocType = "estimate"
	doc, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	sent, err := svc.ChangeStatus(context.Background(), doc.ID, StatusSent)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)
	assert.NotNil(t, sent.SentAt)
}

func TestDuplicateMintsFreshNumber(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	src, err := svc.Create(context.Background(), invoiceRequest())
	require.NoError(t, err)
	_, err = svc.ChangeStatus(context.Background(), src.ID, StatusPaid)
	require.NoError(t, err)

	dup, err := svc.Duplicate(context.Background(), src.ID)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, dup.ID)
	assert.Equal(t, "INV-0123-ABCD-2", dup.Number)
	assert.Equal(t, StatusPending, dup.Status)
	assert.Nil(t, dup.PaidAt)
	assert.Equal(t, src.Total, dup.Total)
	require.Len(t, dup.Items, len(src.Items))
}

func TestDeleteRemovesDocument(t *testing.T) {
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)

	doc, err := svc.Create(context.Background(), invoiceRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), doc.ID))
	_, err = svc.Get(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
