package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tradedocs/tradedocs/internal/jobs"
)

// Sweeper is the slice of document persistence the sweep jobs need.
type Sweeper interface {
	MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int64, error)
	ExpireSentEstimates(ctx context.Context, asOf time.Time) (int64, error)
}

// DocumentSweeps bundles the scheduled lifecycle sweeps over documents.
type DocumentSweeps struct {
	repo    Sweeper
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewDocumentSweeps constructs the sweep handlers. metrics may be nil.
func NewDocumentSweeps(repo Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *DocumentSweeps {
	return &DocumentSweeps{repo: repo, logger: logger, metrics: metrics}
}

// HandleOverdueScan moves pending invoices past their due date to overdue.
func (s *DocumentSweeps) HandleOverdueScan(ctx context.Context, task *asynq.Task) error {
	tracker := s.metrics.Track(TaskOverdueScan)
	payload, err := decodeScanPayload(task.Payload())
	if err != nil {
		return tracker.End(err)
	}
	n, err := s.repo.MarkOverdueInvoices(ctx, payload.AsOf)
	if err != nil {
		return tracker.End(err)
	}
	s.metrics.AddSwept(TaskOverdueScan, n)
	s.logger.Info("overdue scan complete",
		slog.Time("as_of", payload.AsOf), slog.Int64("marked", n))
	return tracker.End(nil)
}

// HandleEstimateExpiry expires sent estimates whose validity window closed.
func (s *DocumentSweeps) HandleEstimateExpiry(ctx context.Context, task *asynq.Task) error {
	tracker := s.metrics.Track(TaskEstimateExpiry)
	payload, err := decodeScanPayload(task.Payload())
	if err != nil {
		return tracker.End(err)
	}
	n, err := s.repo.ExpireSentEstimates(ctx, payload.AsOf)
	if err != nil {
		return tracker.End(err)
	}
	s.metrics.AddSwept(TaskEstimateExpiry, n)
	s.logger.Info("estimate expiry complete",
		slog.Time("as_of", payload.AsOf), slog.Int64("expired", n))
	return tracker.End(nil)
}

// Handlers returns the task registrations for worker setup.
func (s *DocumentSweeps) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskOverdueScan, Handler: s.HandleOverdueScan},
		{Type: TaskEstimateExpiry, Handler: s.HandleEstimateExpiry},
	}
}
