package models

import "time"

// ProcessingStatus is the lifecycle state of a scanned receipt in the
// processing queue.
type ProcessingStatus string

const (
	StatusQueued     ProcessingStatus = "queued"     // admitted, runner not started yet
	StatusSending    ProcessingStatus = "sending"    // extraction request in flight
	StatusProcessing ProcessingStatus = "processing" // backend accepted, polling for completion
	StatusSuccess    ProcessingStatus = "success"
	StatusError      ProcessingStatus = "error"
	StatusDuplicate  ProcessingStatus = "duplicate" // receipt was already processed by the backend
)

// IsTerminal reports whether no further status transition can occur.
func (s ProcessingStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusDuplicate:
		return true
	}
	return false
}

// IsActive reports whether the entry still occupies the processing pipeline.
func (s ProcessingStatus) IsActive() bool {
	switch s {
	case StatusQueued, StatusSending, StatusProcessing:
		return true
	}
	return false
}

// QueueEntry tracks one admitted scan through the processing pipeline.
// The URL is the natural dedup key until the backend assigns a record id.
type QueueEntry struct {
	TraceID       string           `json:"trace_id"`
	URL           string           `json:"url"`
	RecordID      int              `json:"record_id,omitempty"` // 0 until assigned by the backend
	Status        ProcessingStatus `json:"status"`
	MarketName    string           `json:"market_name,omitempty"`
	ProductsCount int              `json:"products_count,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	AddedAt       time.Time        `json:"added_at"`
}

// EntryPatch is a partial update applied to a queue entry. Nil fields are
// left untouched.
type EntryPatch struct {
	Status        *ProcessingStatus
	RecordID      *int
	MarketName    *string
	ProductsCount *int
	ErrorMessage  *string
}

// PatchStatus returns a patch that only changes the status.
func PatchStatus(status ProcessingStatus) EntryPatch {
	return EntryPatch{Status: &status}
}
