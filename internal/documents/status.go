package documents

import (
	"github.com/tradedocs/tradedocs/internal/numbering"
)

// Status is a document lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// transitions is the legal-move table per document type. Anything absent is
// an illegal transition.
var transitions = map[numbering.DocumentType]map[Status][]Status{
	numbering.TypeInvoice: {
		StatusPending: {StatusPaid, StatusOverdue, StatusCancelled},
		StatusOverdue: {StatusPaid, StatusCancelled},
	},
	numbering.TypeEstimate: {
		StatusDraft: {StatusSent, StatusCancelled},
		StatusSent:  {StatusAccepted, StatusRejected, StatusExpired},
	},
	numbering.TypeInsuranceEstimate: {
		StatusDraft: {StatusSent, StatusCancelled},
		StatusSent:  {StatusAccepted, StatusRejected, StatusExpired},
	},
	numbering.TypePlumberReport: {
		StatusDraft: {StatusSent, StatusCancelled},
		StatusSent:  {StatusAccepted, StatusRejected, StatusExpired},
	},
	numbering.TypeWorkOrder: {
		StatusDraft:    {StatusSent, StatusCancelled},
		StatusSent:     {StatusAccepted, StatusRejected, StatusCancelled},
		StatusAccepted: {StatusPaid, StatusOverdue, StatusCancelled},
		StatusOverdue:  {StatusPaid, StatusCancelled},
	},
}

// InitialStatus returns the type's "not yet sent" state.
func InitialStatus(docType numbering.DocumentType) Status {
	if docType == numbering.TypeInvoice {
		return StatusPending
	}
	return StatusDraft
}

// CanTransition reports whether moving from one status to another is legal
// for the document type.
func CanTransition(docType numbering.DocumentType, from, to Status) bool {
	for _, next := range transitions[docType][from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave the status.
func IsTerminal(docType numbering.DocumentType, s Status) bool {
	return len(transitions[docType][s]) == 0
}
