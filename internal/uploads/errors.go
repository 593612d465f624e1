package uploads

import "fmt"

// StagingError means the remote API refused to issue an upload target.
type StagingError struct {
	Message string
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("failed to stage upload: %s", e.Message)
}

// TransferError means the direct submission to the storage endpoint was
// rejected. The response body is kept for diagnostics.
type TransferError struct {
	Status int
	Body   string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("upload transfer rejected with status %d: %s", e.Status, e.Body)
}

// ProcessingError means remote processing of the uploaded asset reached
// the FAILED terminal state.
type ProcessingError struct {
	ID     string
	Status string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("remote processing of %s failed (status %s)", e.ID, e.Status)
}

// ProcessingTimeout means the asset never reached a terminal state within
// the polling budget. This is "unknown, try later", not a hard failure:
// the asset may still become ready and callers may proceed without it.
type ProcessingTimeout struct {
	ID       string
	Attempts int
}

func (e *ProcessingTimeout) Error() string {
	return fmt.Sprintf("remote processing of %s still pending after %d polls", e.ID, e.Attempts)
}
