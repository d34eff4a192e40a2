package sensor

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures. Connectivity kinds are retryable;
// data kinds are recorded against the run and never retried.
type Kind string

const (
	KindInvalidWindow       Kind = "invalid_window"
	KindSourceUnavailable   Kind = "source_unavailable"
	KindTargetUnavailable   Kind = "target_unavailable"
	KindCorruptRecord       Kind = "corrupt_record"
	KindValidation          Kind = "validation"
	KindConstraintViolation Kind = "constraint_violation"
	KindStoreUnavailable    Kind = "store_unavailable"
)

// Error is the pipeline error type. Field is set for validation failures.
type Error struct {
	Kind   Kind
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s: field %s: %s: %v", e.Kind, e.Field, e.Reason, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: field %s: %s", e.Kind, e.Field, e.Reason)
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// WrapError attaches a kind and reason to an underlying error.
func WrapError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// ValidationError builds a data-fault error for one field.
func ValidationError(field, reason string) *Error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

// KindOf extracts the Kind from an error chain, or "" if none is present.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the error is a connectivity fault the
// orchestrator may retry with backoff.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindSourceUnavailable, KindTargetUnavailable, KindStoreUnavailable:
		return true
	default:
		return false
	}
}
