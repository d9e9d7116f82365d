package models

import "fmt"

// Remote extraction job states as reported by the backend status endpoint.
const (
	RemoteStatusProcessing = "processing"
	RemoteStatusSuccess    = "success"
	RemoteStatusError      = "error"
)

// ExtractRequest asks the backend to extract a scanned NFC-e receipt URL.
// Save and Async are always true for queue submissions; the backend also
// supports a blocking mode that this service does not use.
type ExtractRequest struct {
	URL   string `json:"url"`
	Save  bool   `json:"save"`
	Async bool   `json:"async"`
}

// ExtractResponse is the acknowledgment of an async extraction submission.
type ExtractResponse struct {
	Message  string `json:"message"`
	Status   string `json:"status"`
	RecordID int    `json:"record_id"`
}

// NFCeStatusResponse is one poll result for a submitted extraction job.
// MarketName and ProductsCount may already be present while the job is
// still processing.
type NFCeStatusResponse struct {
	RecordID      int     `json:"record_id"`
	Status        string  `json:"status"`
	MarketID      *string `json:"market_id"`
	MarketName    *string `json:"market_name"`
	ProductsCount int     `json:"products_count"`
	ErrorMessage  *string `json:"error_message"`
	NFCeURL       string  `json:"nfce_url,omitempty"`
	ProcessedAt   string  `json:"processed_at"`
}

// DuplicateReceiptError is the HTTP 409 body returned when a receipt URL
// was already processed by the backend.
type DuplicateReceiptError struct {
	ErrorText     string `json:"error"`
	Message       string `json:"message"`
	ProcessedAt   string `json:"processed_at"`
	MarketID      string `json:"market_id"`
	ProductsCount int    `json:"products_count"`
}

// Error implements the error interface.
func (e *DuplicateReceiptError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("duplicate receipt: %s", e.Message)
	}
	return "duplicate receipt"
}

// UserMessage returns the backend-supplied detail when available, falling
// back to a generic message when the conflict body was absent or malformed.
func (e *DuplicateReceiptError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "Receipt already processed"
}
