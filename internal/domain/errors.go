package domain

import "errors"

// Error taxonomy for the narrative core. All of these are recoverable by the
// caller; none are silently swallowed.
var (
	// ErrInvalidState is returned when an append or transition targets a case
	// whose latest version is Locked, or when the requested transition is not
	// allowed from the current state.
	ErrInvalidState = errors.New("invalid narrative state")

	// ErrMissingJustification blocks promotion to Final/Locked while any
	// critical or significant change lacks a justification.
	ErrMissingJustification = errors.New("justification required for flagged changes")

	// ErrClassification signals that the clinical terms dictionary was
	// unavailable. Severity defaults to Critical when this occurs.
	ErrClassification = errors.New("clinical term classification failed")

	// ErrSequenceConflict is returned when a concurrent append race is
	// detected on the (case_id, sequence_number) pair.
	ErrSequenceConflict = errors.New("narrative version sequence conflict")

	// ErrNotFound is returned when a case, version or change does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the acting role lacks the
	// capability required for the requested operation.
	ErrPermissionDenied = errors.New("permission denied")
)
