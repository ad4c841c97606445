package core

import "github.com/pkg/errors"

// FieldError attaches a message to one input field, named by its JSON path as
// the client submitted it (e.g. "evidence.coordinate").
type FieldError struct {
	Field string
	Error string
}

// ValidationError rejects an inbound payload before it reaches the engine.
// Fields carries the per-field messages the HTTP layer returns; Err, when set,
// is the underlying cause.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// shutdown marks an unrecoverable server state. The HTTP error handler turns
// it into a graceful stop instead of serving further requests.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

// IsShutdown reports whether a shutdown error hides anywhere in err's chain.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
