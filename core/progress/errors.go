package progress

import (
	"errors"
	"fmt"
)

var (
	// recoverable; the caller retries with corrected input
	ErrStaleEvidence = errors.New("location evidence is too old")
	ErrInvalidStep   = errors.New("step does not belong to this journey")

	// repo-level; absorbed by the service as idempotent success, never surfaced
	ErrCompletionExists   = errors.New("step already completed")
	ErrCompletionNotFound = errors.New("completion not found")

	ErrProgressNotFound = errors.New("no progress recorded for this user and journey")
)

// OutOfRangeError rejects a geofence validation attempt, carrying the actual
// distance so the caller can give corrective feedback.
type OutOfRangeError struct {
	DistanceM float64
	RadiusM   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("out of range: %.0f m away, must be within %.0f m", e.DistanceM, e.RadiusM)
}

// ResponseFormatError rejects a malformed quiz submission. Fatal for the
// submission; no partial credit is recorded.
type ResponseFormatError struct {
	Reason string
}

func (e *ResponseFormatError) Error() string {
	return "invalid quiz response format: " + e.Reason
}
