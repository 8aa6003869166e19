package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueScan marks pending invoices past their due date overdue.
	TaskOverdueScan = "documents:overdue_scan"
	// TaskEstimateExpiry expires sent estimates past their validity window.
	TaskEstimateExpiry = "documents:estimate_expiry"
)

// ScanPayload pins a sweep to a point in time so retries stay deterministic.
type ScanPayload struct {
	AsOf time.Time `json:"as_of"`
}

// NewOverdueScanTask constructs the overdue invoice sweep task.
func NewOverdueScanTask(asOf time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(ScanPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueScan, data), nil
}

// NewEstimateExpiryTask constructs the estimate expiry sweep task.
func NewEstimateExpiryTask(asOf time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(ScanPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEstimateExpiry, data), nil
}

func decodeScanPayload(data []byte) (ScanPayload, error) {
	var p ScanPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return ScanPayload{}, err
	}
	if p.AsOf.IsZero() {
		p.AsOf = time.Now().UTC()
	}
	return p, nil
}
