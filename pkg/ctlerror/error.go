// Package ctlerror defines the tagged error type used throughout the
// replication control plane, replacing the source's ad-hoc mix of
// invalid_argument/runtime_error/logic_error exceptions with a single
// structured kind.
package ctlerror

import (
	"errors"
	"fmt"
)

// Kind identifies the class of failure.
type Kind string

const (
	InvalidArgument     Kind = "InvalidArgument"
	UnknownWorker       Kind = "UnknownWorker"
	UnknownDatabase     Kind = "UnknownDatabase"
	UnknownFamily       Kind = "UnknownFamily"
	UnknownTable        Kind = "UnknownTable"
	AlreadyExists       Kind = "AlreadyExists"
	PreconditionFailed  Kind = "PreconditionFailed"
	WorkerDisabled      Kind = "WorkerDisabled"
	Timeout             Kind = "Timeout"
	Cancelled           Kind = "Cancelled"
	InUse               Kind = "InUse"
	Internal            Kind = "Internal"
)

// Error is the control plane's single error type. Reason is a free-text
// description; Kind is the short machine-readable code surfaced to HTTP
// clients as error_code.
type Error struct {
	Kind   Kind
	Reason string
	Err    error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given kind and formatted reason.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that carries an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, defaulting to Internal when err is
// not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return Internal
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
