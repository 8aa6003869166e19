package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradedocs/tradedocs/internal/numbering"
)

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusPending, InitialStatus(numbering.TypeInvoice))
	assert.Equal(t, StatusDraft, InitialStatus(numbering.TypeEstimate))
	assert.Equal(t, StatusDraft, InitialStatus(numbering.TypeInsuranceEstimate))
	assert.Equal(t, StatusDraft, InitialStatus(numbering.TypeWorkOrder))
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		docType numbering.DocumentType
		from    Status
		to      Status
		ok      bool
	}{
		{numbering.TypeInvoice, StatusPending, StatusPaid, true},
		{numbering.TypeInvoice, StatusPending, StatusOverdue, true},
		{numbering.TypeInvoice, StatusOverdue, StatusPaid, true},
		{numbering.TypeInvoice, StatusPaid, StatusPending, false},
		{numbering.TypeInvoice, StatusPending, StatusSent, false},
		{numbering.TypeInvoice, StatusCancelled, StatusPaid, false},

		{numbering.TypeEstimate, StatusDraft, StatusSent, true},
		{numbering.TypeEstimate, StatusSent, StatusAccepted, true},
		{numbering.TypeEstimate, StatusSent, StatusExpired, true},
		{numbering.TypeEstimate, StatusAccepted, StatusSent, false},
		{numbering.TypeEstimate, StatusDraft, StatusAccepted, false},

		// Work orders keep going after acceptance.
		{numbering.TypeWorkOrder, StatusAccepted, StatusPaid, true},
		{numbering.TypeWorkOrder, StatusAccepted, StatusOverdue, true},
		{numbering.TypeWorkOrder, StatusOverdue, StatusPaid, true},
		{numbering.TypeWorkOrder, StatusPaid, StatusOverdue, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.docType, tc.from, tc.to)
		assert.Equal(t, tc.ok, got, "%s: %s -> %s", tc.docType, tc.from, tc.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(numbering.TypeInvoice, StatusPaid))
	assert.True(t, IsTerminal(numbering.TypeInvoice, StatusCancelled))
	assert.False(t, IsTerminal(numbering.TypeInvoice, StatusPending))
	assert.True(t, IsTerminal(numbering.TypeEstimate, StatusRejected))
	assert.False(t, IsTerminal(numbering.TypeWorkOrder, StatusAccepted))
}
