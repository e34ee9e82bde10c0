/*
Package ferrors centralizes the error-kind vocabulary of spec §7, the way
the teacher's generic/errors.go centralizes ledger/store errors in one
place for consistency and discoverability.

USAGE:
  Domain packages return one of the sentinel errors below, optionally
  wrapped in a structured *Error carrying detail. Callers classify with
  errors.Is/errors.As; the dispatcher maps a Kind to a reply status.
*/
package ferrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	NotFound          Kind = "NotFound"
	InvalidState      Kind = "InvalidState"
	PermissionDenied  Kind = "PermissionDenied"
	Conflict          Kind = "Conflict"
	FiscalCommitFailed Kind = "FiscalCommitFailed"
	FiscalDivergence  Kind = "FiscalDivergence"
	ExternalTimeout   Kind = "ExternalTimeout"
	NotImplemented    Kind = "NotImplemented"
	ValidationError   Kind = "ValidationError"
)

// Sentinel errors for errors.Is comparisons.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrConflict           = errors.New("conflict")
	ErrFiscalCommitFailed = errors.New("fiscal commit failed")
	ErrFiscalDivergence   = errors.New("fiscal divergence")
	ErrExternalTimeout    = errors.New("external call timed out")
	ErrNotImplemented     = errors.New("not implemented")
	ErrValidationError    = errors.New("validation error")
)

var sentinelByKind = map[Kind]error{
	NotFound:           ErrNotFound,
	InvalidState:       ErrInvalidState,
	PermissionDenied:   ErrPermissionDenied,
	Conflict:           ErrConflict,
	FiscalCommitFailed: ErrFiscalCommitFailed,
	FiscalDivergence:   ErrFiscalDivergence,
	ExternalTimeout:    ErrExternalTimeout,
	NotImplemented:     ErrNotImplemented,
	ValidationError:    ErrValidationError,
}

// Error carries a Kind plus a human-readable message and optional detail,
// the result enum the spec's Design Notes ask for in place of exceptions.
type Error struct {
	Kind    Kind
	Message string
	Detail  any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return sentinelByKind[e.Kind]
}

// New builds a structured Error for the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a detail payload (any structured value) for callers
// that need more than the message string.
func (e *Error) WithDetail(d any) *Error {
	e.Detail = d
	return e
}

// KindOf extracts the Kind from err, defaulting to "" if err is not one of
// ours.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	for k, sentinel := range sentinelByKind {
		if errors.Is(err, sentinel) {
			return k
		}
	}
	return ""
}

// IsRetryable reports whether the engine should retry once, per spec §4.1
// failure semantics (serialization Conflict).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError reports whether the error stems from invalid client input
// rather than a server-side fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidationError) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNotFound)
}

// IsNotFound reports whether err indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
