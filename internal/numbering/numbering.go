// Package numbering produces document numbers of the form
// PREFIX-STREETNUM-COMPANYCODE-SEQUENCE, scoped per document type and
// company. Sequences are derived from the backing store either as a global
// count or as the highest sequence seen in the current two-digit year.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
	"unicode"
)

// DocumentType identifies the kind of business document being numbered.
type DocumentType string

const (
	TypeInvoice           DocumentType = "invoice"
	TypeEstimate          DocumentType = "estimate"
	TypeInsuranceEstimate DocumentType = "insurance_estimate"
	TypePlumberReport     DocumentType = "plumber_report"
	TypeWorkOrder         DocumentType = "work_order"
)

// SequenceMode selects how the next sequence value is derived.
type SequenceMode int

const (
	// SequenceGlobalCount uses the total stored count for (type, company).
	SequenceGlobalCount SequenceMode = iota
	// SequenceYearMax uses the highest sequence seen for (type, company)
	// within the current two-digit year. Work orders use this mode.
	SequenceYearMax
)

var prefixes = map[DocumentType]string{
	TypeInvoice:           "INV",
	TypeEstimate:          "EST",
	TypeInsuranceEstimate: "INS",
	TypePlumberReport:     "PLM",
	TypeWorkOrder:         "WO",
}

// Prefix returns the fixed number prefix for the type.
func (t DocumentType) Prefix() string {
	return prefixes[t]
}

// Valid reports whether the type is one of the known document types.
func (t DocumentType) Valid() bool {
	_, ok := prefixes[t]
	return ok
}

// Mode returns the sequence derivation mode for the type.
func (t DocumentType) Mode() SequenceMode {
	if t == TypeWorkOrder {
		return SequenceYearMax
	}
	return SequenceGlobalCount
}

var (
	// ErrUnknownType indicates an unrecognised document type.
	ErrUnknownType = errors.New("numbering: unknown document type")
	// ErrStoreUnavailable indicates the existence check could not be
	// performed. Callers fall back to a placeholder number.
	ErrStoreUnavailable = errors.New("numbering: store unavailable")
	// ErrExhausted indicates the bounded collision retry ran out.
	ErrExhausted = errors.New("numbering: sequence attempts exhausted")
)

// Store is the read surface the generator needs from persistence.
type Store interface {
	CountByTypeAndCompany(ctx context.Context, docType DocumentType, companyCode string) (int, error)
	NumberExists(ctx context.Context, docType DocumentType, number string) (bool, error)
	MaxSequenceInYear(ctx context.Context, docType DocumentType, companyCode, yearSuffix string) (int, error)
}

// ExtractStreetNumber scans the address for the first contiguous digit run
// and returns it left-padded with zeros to width 4. Runs longer than 4 digits
// keep only the last 4. Addresses without digits yield "0000". Digits are
// taken verbatim; a unit number appearing before the street number wins.
func ExtractStreetNumber(address string) string {
	var run strings.Builder
	for _, r := range address {
		if unicode.IsDigit(r) {
			run.WriteRune(r)
			continue
		}
		if run.Len() > 0 {
			break
		}
	}
	digits := run.String()
	if digits == "" {
		return "0000"
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return strings.Repeat("0", 4-len(digits)) + digits
}

// FallbackCompanyCode derives a temporary code from a company name's
// initials, prefixed with C and suffixed with a random digit, for companies
// that do not yet own a registered code.
func FallbackCompanyCode(name string) string {
	var initials strings.Builder
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsLetter(r) {
				initials.WriteRune(unicode.ToUpper(r))
			}
			break
		}
		if initials.Len() >= 3 {
			break
		}
	}
	code := initials.String()
	if code == "" {
		code = "XX"
	}
	return fmt.Sprintf("C%s%d", code, rand.Intn(10))
}

// Generator composes document numbers against a Store.
type Generator struct {
	store       Store
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
	randInt     func(n int) int
}

// Option customises a Generator.
type Option func(*Generator)

// WithMaxAttempts bounds the collision retry loop.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRand overrides the random source used for fallback numbers.
func WithRand(fn func(n int) int) Option {
	return func(g *Generator) { g.randInt = fn }
}

// NewGenerator constructs a Generator.
func NewGenerator(store Store, logger *slog.Logger, opts ...Option) *Generator {
	g := &Generator{
		store:       store,
		logger:      logger,
		maxAttempts: 5,
		now:         time.Now,
		randInt:     rand.Intn,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces the next free number for the triple. The candidate
// sequence starts one past the stored count (or past the year's maximum for
// year-scoped types) and is bumped on collision up to the attempt bound.
// A failed count read degrades to sequence 1 with a warning; a failed
// existence check surfaces ErrStoreUnavailable so the caller can substitute
// a fallback number rather than block document creation.
func (g *Generator) Generate(ctx context.Context, docType DocumentType, clientAddress, companyCode string) (string, error) {
	if !docType.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, docType)
	}

	street := ExtractStreetNumber(clientAddress)

	var base int
	var err error
	switch docType.Mode() {
	case SequenceYearMax:
		base, err = g.store.MaxSequenceInYear(ctx, docType, companyCode, g.now().Format("06"))
	default:
		base, err = g.store.CountByTypeAndCompany(ctx, docType, companyCode)
	}
	if err != nil {
		g.logger.Warn("numbering: sequence read failed, starting at 1",
			slog.String("doc_type", string(docType)),
			slog.String("company_code", companyCode),
			slog.Any("error", err))
		base = 0
	}

	seq := base + 1
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate := fmt.Sprintf("%s-%s-%s-%d", docType.Prefix(), street, companyCode, seq)
		exists, err := g.store.NumberExists(ctx, docType, candidate)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !exists {
			return candidate, nil
		}
		g.logger.Warn("numbering: candidate collision",
			slog.String("doc_type", string(docType)),
			slog.String("candidate", candidate))
		seq++
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, g.maxAttempts)
}

// Fallback produces a timestamp-based placeholder number. It abandons the
// structured format so that document creation is never blocked by numbering;
// callers surface its use as a warning condition.
func (g *Generator) Fallback(docType DocumentType) string {
	prefix := docType.Prefix()
	if prefix == "" {
		prefix = "DOC"
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, g.now().Unix(), g.randInt(10000))
}
