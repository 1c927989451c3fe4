// Package errs provides the reservation core's error taxonomy: a small
// closed set of kinds that the coordinator, validator and assigner
// produce, and that any future HTTP adapter would translate per the
// status table below.
package errs

import "fmt"

// Kind is the logical error taxonomy described in spec §7. It is not a
// wire error code; callers compare with errors.As and switch on Kind.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindNotFound   Kind = "NOT_FOUND"
	KindCapacity   Kind = "CAPACITY"
	KindConflict   Kind = "CONFLICT"
	KindTimeout    Kind = "TIMEOUT"
	KindTransient  Kind = "TRANSIENT"
)

// CapacitySubkind distinguishes the two Capacity failure modes spec §7
// calls out by name.
type CapacitySubkind string

const (
	CapacityNoAvailability   CapacitySubkind = "NO_AVAILABILITY"
	CapacityNoSuitableTables CapacitySubkind = "NO_SUITABLE_TABLES"
)

// HTTPStatus maps a Kind to the status code an HTTP adapter would use.
// Carried here, even though this core has no HTTP surface, so an
// adapter never has to re-derive spec §7's table.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindCapacity:
		return 400
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindTimeout:
		return 504
	default:
		return 500
	}
}

// Error is the concrete error type produced across the reservation
// core. Fields is a per-field message map for aggregated structural
// validation failures (spec §7, "Carries a per-field message map").
type Error struct {
	Kind       Kind
	Message    string
	Capacity   CapacitySubkind
	SlotDesc   string
	Fields     map[string]string
	Cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on Kind, and on the Capacity subkind when the
// target sets one, the way callers want to branch ("is this a Capacity
// error") without caring about the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Capacity != "" && t.Capacity != e.Capacity {
		return false
	}
	return true
}

// WithField attaches a single field-level validation message.
func (e *Error) WithField(field, reason string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = reason
	return e
}

// WithCause wraps an underlying error for logging/unwrap purposes.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Validation builds a single-field validation error.
func Validation(field, reason string) *Error {
	return (&Error{Kind: KindValidation, Message: fmt.Sprintf("validation failed: %s", reason)}).WithField(field, reason)
}

// ValidationFields builds an aggregated validation error from a field
// map collected by "collect field errors, fail fast" (spec §4.7 step 1).
func ValidationFields(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// NotFound builds a not-found error for the named entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

// NoAvailability builds the "slot is full" Capacity subkind, carrying
// the human-readable slot descriptor spec §7 requires for UI surfacing.
func NoAvailability(slotDesc string) *Error {
	return &Error{Kind: KindCapacity, Capacity: CapacityNoAvailability, SlotDesc: slotDesc,
		Message: fmt.Sprintf("no availability for %s", slotDesc)}
}

// NoSuitableTables builds the "no table fits" Capacity subkind.
func NoSuitableTables(slotDesc string) *Error {
	return &Error{Kind: KindCapacity, Capacity: CapacityNoSuitableTables, SlotDesc: slotDesc,
		Message: fmt.Sprintf("no suitable table for %s", slotDesc)}
}

// Conflict builds a concurrent-modification error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Timeout builds a remote-oracle timeout error.
func Timeout(what string, cause error) *Error {
	return (&Error{Kind: KindTimeout, Message: fmt.Sprintf("%s timed out", what)}).WithCause(cause)
}

// Transient builds a best-effort, caller-decides-whether-to-retry error.
func Transient(message string, cause error) *Error {
	return (&Error{Kind: KindTransient, Message: message}).WithCause(cause)
}
