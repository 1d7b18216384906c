package dailyentry

import (
	"errors"
	"fmt"

	"github.com/mamadbah2/flockbook/pkg/clients/poultry"
)

// Failure kinds. Every *Error returned by this package matches exactly one of
// them through errors.Is.
var (
	// ErrValidationFailed blocks a submission before any network write.
	ErrValidationFailed = errors.New("validation failed")
	// ErrFetchFailed means the stored state could not be read. It never means
	// "no entry exists".
	ErrFetchFailed = errors.New("fetch failed")
	// ErrConflictFailed means another write changed the entry since it was loaded.
	ErrConflictFailed = errors.New("conflicting write")
	// ErrServerFailed covers every other failed write, including writes whose
	// outcome is unknown.
	ErrServerFailed = errors.New("submission failed")
)

var (
	// ErrSubmissionInFlight rejects a second submission for a key that is
	// already being written.
	ErrSubmissionInFlight = errors.New("a submission for this entry is already in progress")
	// ErrStaleResponse is returned to a load that was superseded by a newer one.
	ErrStaleResponse = errors.New("response superseded by a newer request")
	// ErrNotEditable rejects edits and submissions outside the editable states.
	ErrNotEditable = errors.New("form is not editable in its current state")
)

const outcomeUnknownMessage = "the server did not confirm the submission; its outcome is unknown, reload the entry before retrying"

// Error is a classified daily entry failure.
type Error struct {
	Kind    error
	Field   string
	Code    poultry.ErrorCode
	Message string
	// OutcomeUnknown is set when a write may or may not have been applied.
	OutcomeUnknown bool
	Err            error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches the failure kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindName is the stable name of the failure kind used in API payloads.
func (e *Error) KindName() string {
	switch e.Kind {
	case ErrValidationFailed:
		return "validation_failed"
	case ErrFetchFailed:
		return "fetch_failed"
	case ErrConflictFailed:
		return "conflict_failed"
	case ErrServerFailed:
		return "server_failed"
	default:
		return "unknown"
	}
}

func validationError(field, format string, args ...any) *Error {
	return &Error{Kind: ErrValidationFailed, Field: field, Code: poultry.CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// fetchError classifies a failed read.
func fetchError(op string, err error) *Error {
	out := &Error{Kind: ErrFetchFailed, Code: poultry.CodeUnknown, Message: fmt.Sprintf("could not %s", op), Err: err}
	var apiErr *poultry.APIError
	if errors.As(err, &apiErr) {
		out.Code = apiErr.Code
		out.Message = apiErr.Detail
	}
	return out
}

// writeError classifies a failed create or update. Backend messages are kept
// verbatim; a missing answer is never read as success.
func writeError(err error) *Error {
	var apiErr *poultry.APIError
	if errors.As(err, &apiErr) {
		kind := ErrServerFailed
		if apiErr.IsConflict() {
			kind = ErrConflictFailed
		}
		return &Error{Kind: kind, Code: apiErr.Code, Message: apiErr.Detail, Err: err}
	}
	return &Error{
		Kind:           ErrServerFailed,
		Code:           poultry.CodeUnknown,
		Message:        outcomeUnknownMessage,
		OutcomeUnknown: true,
		Err:            err,
	}
}

// AsError extracts the classified failure from err, if any.
func AsError(err error) (*Error, bool) {
	var out *Error
	if errors.As(err, &out) {
		return out, true
	}
	return nil, false
}
