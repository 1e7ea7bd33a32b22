// Package apperr defines the structured error type shared across the
// agent, with the transient / permanent / fatal taxonomy the pipeline's
// outcome mapping relies on.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies how an error should be handled.
type Kind int

const (
	// KindTransient: network timeouts, rate limits, provider/sink 5xx.
	// Safe to retry on a later cycle; the ledger makes re-runs idempotent.
	KindTransient Kind = iota

	// KindPermanent: malformed payloads, out-of-set values after retry,
	// sink 4xx. Retrying will not help; surfaced per-message, never fatal
	// to the batch.
	KindPermanent

	// KindFatal: infrastructure-level failures (ledger unreachable, mail
	// source unreadable). Aborts the whole cycle.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error codes.
const (
	CodeProviderError  = "PROVIDER_ERROR"
	CodeProviderParse  = "PROVIDER_PARSE"
	CodeSinkError      = "SINK_ERROR"
	CodeSinkRejected   = "SINK_REJECTED"
	CodeLedgerError    = "LEDGER_ERROR"
	CodeSourceError    = "SOURCE_ERROR"
	CodeNotifyError    = "NOTIFY_ERROR"
	CodeConfigError    = "CONFIG_ERROR"
	CodeTimeout        = "TIMEOUT"
	CodeCircuitOpen    = "CIRCUIT_OPEN"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeDatabaseError  = "DATABASE_ERROR"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeInvalidRequest = "INVALID_REQUEST"
)

// AppError is a structured application error.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Kind    Kind           `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New builds an AppError from scratch.
func New(code, message string, kind Kind) *AppError {
	return &AppError{Code: code, Message: message, Kind: kind}
}

// Wrap attaches code and kind to an underlying error.
func Wrap(err error, code, message string, kind Kind) *AppError {
	return &AppError{Code: code, Message: message, Kind: kind, Err: err}
}

// Constructors for the common cases.

func Transient(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Kind: KindTransient, Err: err}
}

func Permanent(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Kind: KindPermanent, Err: err}
}

func Fatal(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Kind: KindFatal, Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// default to transient: retrying is the safe direction because the ledger
// guarantees at-most-once emission.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindTransient
}

// CodeOf extracts the error code from a chain, defaulting to
// CodeInternalError for unclassified errors.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternalError
}

// IsTransient reports whether retrying the operation may succeed.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsPermanent reports whether retrying is pointless.
func IsPermanent(err error) bool { return KindOf(err) == KindPermanent }

// IsFatal reports whether the whole cycle must abort.
func IsFatal(err error) bool { return KindOf(err) == KindFatal }
