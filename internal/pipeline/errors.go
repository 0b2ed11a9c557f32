package pipeline

import "fmt"

// VendorFetchError wraps failures while retrieving call data or transcripts
// from the telephony vendor.
type VendorFetchError struct {
	CallID string
	Err    error
}

func (e *VendorFetchError) Error() string {
	return fmt.Sprintf("vendor fetch for call %s: %v", e.CallID, e.Err)
}

func (e *VendorFetchError) Unwrap() error { return e.Err }

// SummarizationError wraps failures while producing a summary.
type SummarizationError struct {
	CallID string
	Err    error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarization for call %s: %v", e.CallID, e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// CRMSyncError wraps failures while pushing a summary to the CRM. The call
// data is already persisted when this error occurs; the sync can be retried
// on its own.
type CRMSyncError struct {
	CallID string
	Phone  string
	Err    error
}

func (e *CRMSyncError) Error() string {
	return fmt.Sprintf("crm sync for call %s (%s): %v", e.CallID, e.Phone, e.Err)
}

func (e *CRMSyncError) Unwrap() error { return e.Err }
