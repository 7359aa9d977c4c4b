package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures surfaced by the sync engine.
type ErrorCode string

const (
	// ErrCodeStorageFailure indicates the local database rejected a read or write.
	ErrCodeStorageFailure ErrorCode = "STORAGE_FAILURE"

	// ErrCodeTransientNetwork indicates a remote call failed in a retryable way.
	ErrCodeTransientNetwork ErrorCode = "TRANSIENT_NETWORK"

	// ErrCodePermanentRejection indicates the remote refused a payload for good.
	ErrCodePermanentRejection ErrorCode = "PERMANENT_REJECTION"

	// ErrCodeQuotaExceeded indicates an asset cannot fit in the cache budget.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeStaleManifest indicates the remote offered an older version than cached.
	ErrCodeStaleManifest ErrorCode = "STALE_MANIFEST"

	// ErrCodeInvalidTransition indicates an outbox state change the state machine forbids.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
)

// Error is a categorized failure. Op names the operation that failed
// (e.g. "store.RecordCompletion") and Err carries the cause.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewStorageError wraps a database failure.
func NewStorageError(op string, err error) *Error {
	return &Error{Code: ErrCodeStorageFailure, Op: op, Err: err}
}

// NewTransientError wraps a retryable remote failure.
func NewTransientError(op string, err error) *Error {
	return &Error{Code: ErrCodeTransientNetwork, Op: op, Err: err}
}

// NewPermanentError records a remote rejection that retrying will not fix.
func NewPermanentError(op, reason string) *Error {
	return &Error{Code: ErrCodePermanentRejection, Op: op, Message: reason}
}

// NewQuotaError reports that need bytes cannot fit under limit.
func NewQuotaError(op, assetID string, need, limit int64) *Error {
	return &Error{
		Code:    ErrCodeQuotaExceeded,
		Op:      op,
		Message: fmt.Sprintf("asset %s needs %d bytes, limit %d", assetID, need, limit),
	}
}

// NewStaleManifestError reports an offered version older than the cached one.
func NewStaleManifestError(op, entryID string, offered, cached int64) *Error {
	return &Error{
		Code:    ErrCodeStaleManifest,
		Op:      op,
		Message: fmt.Sprintf("entry %s offered v%d, cached v%d", entryID, offered, cached),
	}
}

// NewTransitionError reports a forbidden outbox state change.
func NewTransitionError(op, id string, from, to OutboxState) *Error {
	return &Error{
		Code:    ErrCodeInvalidTransition,
		Op:      op,
		Message: fmt.Sprintf("outbox item %s: %s -> %s", id, from, to),
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsStorageFailure(err error) bool    { return CodeOf(err) == ErrCodeStorageFailure }
func IsTransient(err error) bool         { return CodeOf(err) == ErrCodeTransientNetwork }
func IsPermanent(err error) bool         { return CodeOf(err) == ErrCodePermanentRejection }
func IsQuotaExceeded(err error) bool     { return CodeOf(err) == ErrCodeQuotaExceeded }
func IsStaleManifest(err error) bool     { return CodeOf(err) == ErrCodeStaleManifest }
func IsInvalidTransition(err error) bool { return CodeOf(err) == ErrCodeInvalidTransition }
