// Package mutation orchestrates asset updates: validation, the atomic
// store write, diff computation, audit append, and idempotent response
// caching.
package mutation

import "errors"

// Kind tags an error with its category so callers can map it to a
// transport-level response without inspecting error structure.
type Kind string

// Error kinds.
const (
	// KindClientInput covers malformed requests: a missing idempotency key
	// or an update with no effective fields.
	KindClientInput Kind = "client_input"

	// KindNotFound means the target asset does not exist.
	KindNotFound Kind = "not_found"

	// KindValidation means one or more fields failed validation; Details
	// carries the per-field messages.
	KindValidation Kind = "validation"

	// KindInternal covers store and encoding failures.
	KindInternal Kind = "internal"
)

// Error is the pipeline's tagged error type.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Sentinel pipeline errors.
var (
	// ErrMissingIdempotencyKey is returned when a mutation arrives without
	// an idempotency key.
	ErrMissingIdempotencyKey = &Error{
		Kind:    KindClientInput,
		Message: "Idempotency-Key header is required",
	}

	// ErrNoFieldsToUpdate is returned when validation leaves zero effective
	// fields.
	ErrNoFieldsToUpdate = &Error{
		Kind:    KindClientInput,
		Message: "No valid fields to update",
	}

	// ErrAssetNotFound is returned when the target asset does not exist.
	ErrAssetNotFound = &Error{
		Kind:    KindNotFound,
		Message: "Asset not found",
	}
)

// ValidationFailed builds a validation error carrying a per-field detail
// map suitable for form re-rendering.
func ValidationFailed(details map[string]string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "Validation failed",
		Details: details,
	}
}

// InternalError wraps a store or encoding failure.
func InternalError(message string, cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Message: message,
		cause:   cause,
	}
}

// KindOf returns the kind of an error produced by the pipeline.
// Errors that are not pipeline errors are classified as internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailsOf returns the per-field detail map of a validation error, or nil.
func DetailsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
