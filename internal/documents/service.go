package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradedocs/tradedocs/internal/numbering"
	"github.com/tradedocs/tradedocs/internal/observability"
	"github.com/tradedocs/tradedocs/internal/shared"
	"github.com/tradedocs/tradedocs/internal/totals"
)

// CompanyDirectory resolves the code and name of a document's owning company.
type CompanyDirectory interface {
	CompanyRef(ctx context.Context, id int64) (code, name string, err error)
}

// Locker serializes number generation per (type, company). Implementations
// return a release function. A lock that cannot be obtained is a warning, not
// a failure: the unique constraint on (doc_type, number) still backstops.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// AuditRecorder persists audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for document operations.
type Service struct {
	repo      Repository
	companies CompanyDirectory
	gen       *numbering.Generator
	locker    Locker
	audit     AuditRecorder
	metrics   *observability.Metrics
	logger    *slog.Logger

	persistAttempts int
	lockTTL         time.Duration
}

// NewService constructs a document service. locker, audit, and metrics may be
// nil; the service degrades gracefully without them.
func NewService(repo Repository, companies CompanyDirectory, gen *numbering.Generator, locker Locker, audit AuditRecorder, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		repo:            repo,
		companies:       companies,
		gen:             gen,
		locker:          locker,
		audit:           audit,
		metrics:         metrics,
		logger:          logger,
		persistAttempts: 3,
		lockTTL:         5 * time.Second,
	}
}

// Create computes totals, generates a number when none was supplied, and
// persists header plus items atomically.
func (s *Service) Create(ctx context.Context, req CreateDocumentRequest) (*Document, error) {
	docType := numbering.DocumentType(req.DocType)
	if !docType.Valid() {
		return nil, fmt.Errorf("%w: %q", numbering.ErrUnknownType, req.DocType)
	}

	policy := PolicyFor(docType)
	tot, err := totals.Compute(toLineItems(req.Items), toInputs(req.TaxRate, req.Discount, req.OPPercent, req.Shipping, req.Deductible), policy)
	if err != nil {
		return nil, err
	}

	code, name, err := s.companies.CompanyRef(ctx, req.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("resolve company: %w", err)
	}
	if code == "" {
		code = numbering.FallbackCompanyCode(name)
		s.logger.Warn("company has no registered code, using derived fallback",
			slog.Int64("company_id", req.CompanyID),
			slog.String("code", code))
	}

	doc := s.buildDocument(docType, req, tot, policy)

	var id int64
	if req.Number != "" {
		doc.Number = req.Number
		id, err = s.persist(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("persist document: %w", err)
		}
	} else {
		id, err = s.createNumbered(ctx, doc, code, req.ClientAddress)
		if err != nil {
			return nil, err
		}
	}

	s.metrics.DocumentCreated(string(docType))
	s.recordAudit(ctx, shared.AuditDocumentCreated, id, map[string]any{
		"doc_type": string(docType),
		"number":   doc.Number,
		"total":    doc.Total,
	})
	return s.repo.Get(ctx, id)
}

// createNumbered serializes generation per (type, company) and retries the
// insert on number collisions up to the attempt bound. A store outage during
// the existence check degrades to a timestamp fallback number so creation is
// never blocked by numbering.
func (s *Service) createNumbered(ctx context.Context, doc Document, companyCode, clientAddress string) (int64, error) {
	release := s.lock(ctx, doc.DocType, companyCode)
	defer release()

	var lastErr error
	for attempt := 0; attempt < s.persistAttempts; attempt++ {
		number, err := s.gen.Generate(ctx, doc.DocType, clientAddress, companyCode)
		if err != nil {
			if !errors.Is(err, numbering.ErrStoreUnavailable) {
				return 0, err
			}
			number = s.gen.Fallback(doc.DocType)
			s.metrics.NumberingFallback()
			s.logger.Warn("numbering store unavailable, using fallback number",
				slog.String("doc_type", string(doc.DocType)),
				slog.String("number", number),
				slog.Any("error", err))
		}
		doc.Number = number

		id, err := s.persist(ctx, doc)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrDuplicateNumber) {
			return 0, fmt.Errorf("persist document: %w", err)
		}
		s.metrics.NumberingCollision()
		s.logger.Warn("generated number collided on insert, regenerating",
			slog.String("doc_type", string(doc.DocType)),
			slog.String("number", number))
		lastErr = err
	}
	return 0, fmt.Errorf("%w: %v", numbering.ErrExhausted, lastErr)
}

func (s *Service) lock(ctx context.Context, docType numbering.DocumentType, companyCode string) func() {
	if s.locker == nil {
		return func() {}
	}
	key := shared.NumberingLockKey(string(docType), companyCode)
	release, err := s.locker.Obtain(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.Warn("numbering lock not obtained, proceeding unserialized",
			slog.String("key", key),
			slog.Any("error", err))
		return func() {}
	}
	return release
}

func (s *Service) persist(ctx context.Context, doc Document) (int64, error) {
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.CreateDocument(ctx, doc)
		if err != nil {
			return err
		}
		for i := range doc.Items {
			doc.Items[i].DocumentID = id
			if _, err := tx.InsertItem(ctx, doc.Items[i]); err != nil {
				return fmt.Errorf("insert item %d: %w", i, err)
			}
		}
		return nil
	})
	return id, err
}

func (s *Service) buildDocument(docType numbering.DocumentType, req CreateDocumentRequest, tot totals.Totals, policy totals.Policy) Document {
	issueDate := req.IssueDate
	if issueDate.IsZero() {
		issueDate = time.Now()
	}
	doc := Document{
		DocType:       docType,
		CompanyID:     req.CompanyID,
		ClientName:    req.ClientName,
		ClientAddress: req.ClientAddress,
		ClientEmail:   req.ClientEmail,
		ClientPhone:   req.ClientPhone,
		Status:        InitialStatus(docType),
		IssueDate:     issueDate,
		DueDate:       req.DueDate,
		ValidUntil:    req.ValidUntil,
		TaxRate:       req.TaxRate,
		Discount:      req.Discount,
		OPPercent:     req.OPPercent,
		Shipping:      req.Shipping,
		Deductible:    req.Deductible,
		Notes:         req.Notes,
		Items:         buildItems(req.Items, policy),
	}
	applyTotals(&doc, tot)
	return doc
}

func applyTotals(doc *Document, tot totals.Totals) {
	doc.Subtotal = tot.Subtotal.InexactFloat64()
	doc.TaxAmount = tot.TaxAmount.InexactFloat64()
	doc.DiscountAmount = tot.DiscountAmount.InexactFloat64()
	doc.OverheadProfit = tot.OverheadProfit.InexactFloat64()
	doc.DepreciationAmount = tot.DepreciationAmount.InexactFloat64()
	doc.ACVAmount = tot.ACVAmount.InexactFloat64()
	doc.RCVAmount = tot.RCVAmount.InexactFloat64()
	doc.Total = tot.Total.InexactFloat64()
}

func buildItems(reqs []ItemRequest, policy totals.Policy) []Item {
	lineItems := toLineItems(reqs)
	items := make([]Item, 0, len(reqs))
	for i, r := range reqs {
		li := lineItems[i]
		it := Item{
			Description:      r.Description,
			Quantity:         r.Quantity,
			Unit:             r.Unit,
			Rate:             r.Rate,
			TaxRate:          r.TaxRate,
			Category:         r.Category,
			IsCredit:         r.IsCredit,
			DepreciationRate: r.DepreciationRate,
			RCVAmount:        r.RCVAmount,
			Amount:           li.Amount().Round(2).InexactFloat64(),
			LineOrder:        i + 1,
		}
		if policy.TaxMode == totals.TaxPerItem {
			it.TaxAmount = li.TaxAmount().InexactFloat64()
		}
		if policy.InsuranceChain {
			it.DepreciationAmount = li.DepreciationAmount().InexactFloat64()
			it.ACVAmount = li.ACVAmount().InexactFloat64()
		}
		items = append(items, it)
	}
	return items
}

// Get retrieves a document with its items.
func (s *Service) Get(ctx context.Context, id int64) (*Document, error) {
	return s.repo.Get(ctx, id)
}

// GetByNumber retrieves a document by its full number string.
func (s *Service) GetByNumber(ctx context.Context, docType numbering.DocumentType, number string) (*Document, error) {
	return s.repo.GetByNumber(ctx, docType, number)
}

// List returns a filtered page of documents.
func (s *Service) List(ctx context.Context, req ListDocumentsRequest) ([]Document, int, error) {
	return s.repo.List(ctx, req)
}

// ReplaceItems swaps the document's full item list and rebuilds the totals
// snapshot inside the same transaction, so no reader observes stored totals
// that disagree with stored items.
func (s *Service) ReplaceItems(ctx context.Context, id int64, req ReplaceItemsRequest) (*Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	policy := PolicyFor(doc.DocType)
	tot, err := totals.Compute(toLineItems(req.Items), toInputs(doc.TaxRate, doc.Discount, doc.OPPercent, doc.Shipping, doc.Deductible), policy)
	if err != nil {
		return nil, err
	}

	updated := *doc
	applyTotals(&updated, tot)
	items := buildItems(req.Items, policy)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteItems(ctx, id); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		for i := range items {
			items[i].DocumentID = id
			if _, err := tx.InsertItem(ctx, items[i]); err != nil {
				return fmt.Errorf("insert item %d: %w", i, err)
			}
		}
		return tx.UpdateTotals(ctx, updated)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, shared.AuditDocumentItems, id, map[string]any{
		"items": len(items),
		"total": updated.Total,
	})
	return s.repo.Get(ctx, id)
}

// ChangeStatus moves the document through its lifecycle, rejecting
// transitions absent from the type's transition table. Entering sent or paid
// stamps the corresponding timestamp.
func (s *Service) ChangeStatus(ctx context.Context, id int64, to Status) (*Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(doc.DocType, doc.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s for %s", ErrInvalidStatus, doc.Status, to, doc.DocType)
	}

	now := time.Now()
	var sentAt, paidAt *time.Time
	switch to {
	case StatusSent:
		sentAt = &now
	case StatusPaid:
		paidAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, id, to, sentAt, paidAt); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, shared.AuditDocumentStatus, id, map[string]any{
		"from": string(doc.Status),
		"to":   string(to),
	})
	return s.repo.Get(ctx, id)
}

// Duplicate copies a document under a freshly generated number. The copy
// starts at the type's initial status with no lifecycle timestamps.
func (s *Service) Duplicate(ctx context.Context, id int64) (*Document, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	code, name, err := s.companies.CompanyRef(ctx, src.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("resolve company: %w", err)
	}
	if code == "" {
		code = numbering.FallbackCompanyCode(name)
	}

	copyDoc := *src
	copyDoc.ID = 0
	copyDoc.Status = InitialStatus(src.DocType)
	copyDoc.SentAt = nil
	copyDoc.PaidAt = nil
	copyDoc.Items = make([]Item, len(src.Items))
	for i, it := range src.Items {
		it.ID = 0
		it.DocumentID = 0
		copyDoc.Items[i] = it
	}

	newID, err := s.createNumbered(ctx, copyDoc, code, src.ClientAddress)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, shared.AuditDocumentDuplicated, newID, map[string]any{
		"source_id": id,
	})
	return s.repo.Get(ctx, newID)
}

// Delete removes a document and its items.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, shared.AuditDocumentDeleted, id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "document",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
