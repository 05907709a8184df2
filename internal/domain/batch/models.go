package batch

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the processing state of one ingestion batch.
type Status string

const (
	StatusReady      Status = "READY"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var ErrBatchNotFound = errors.New("batch not found")

// Batch is one ingestion unit corresponding to one "data ready" webhook
// delivery. It is keyed by the provider session id: redelivery of the same
// notification upserts the same row instead of creating a second batch.
// Batches are retained indefinitely for replay and audit.
type Batch struct {
	ID               string          `json:"id"`
	SessionID        string          `json:"sessionId"`
	ConsentHandle    string          `json:"consentHandle,omitempty"`
	FIType           string          `json:"fiType,omitempty"`
	Status           Status          `json:"status"`
	RecordsFetched   int             `json:"recordsFetched"`
	RecordsProcessed int             `json:"recordsProcessed"`
	Payload          json.RawMessage `json:"-"`
	ErrorDetail      string          `json:"errorDetail,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}
