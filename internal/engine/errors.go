package engine

import (
	"errors"
	"fmt"
)

// RequestError is a caller mistake detected by the engine: an unknown
// catalog entry, a missing session, an invalid completion.
//
// Storage and network failures are reported as *model.Error instead.
type RequestError struct {
	// Code identifies the error category.
	Code RequestErrorCode

	// Message is a human-readable description.
	Message string

	// StudentID and EntryID identify the affected record when known.
	StudentID string
	EntryID   string
}

// RequestErrorCode categorizes request errors.
type RequestErrorCode string

const (
	// ErrCodeUnknownEntry indicates the catalog entry is not cached locally.
	ErrCodeUnknownEntry RequestErrorCode = "UNKNOWN_ENTRY"

	// ErrCodeSessionNotFound indicates the session does not exist or has ended.
	ErrCodeSessionNotFound RequestErrorCode = "SESSION_NOT_FOUND"

	// ErrCodeInvalidInput indicates a malformed request.
	ErrCodeInvalidInput RequestErrorCode = "INVALID_INPUT"
)

func (e *RequestError) Error() string {
	if e.StudentID != "" && e.EntryID != "" {
		return fmt.Sprintf("%s: %s (student=%s, entry=%s)", e.Code, e.Message, e.StudentID, e.EntryID)
	}
	if e.EntryID != "" {
		return fmt.Sprintf("%s: %s (entry=%s)", e.Code, e.Message, e.EntryID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasRequestCode(err error, code RequestErrorCode) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownEntry reports whether err is an unknown catalog entry error.
func IsUnknownEntry(err error) bool { return hasRequestCode(err, ErrCodeUnknownEntry) }

// IsSessionNotFound reports whether err is a missing or ended session error.
func IsSessionNotFound(err error) bool { return hasRequestCode(err, ErrCodeSessionNotFound) }

// IsInvalidInput reports whether err is a malformed request error.
func IsInvalidInput(err error) bool { return hasRequestCode(err, ErrCodeInvalidInput) }

func newUnknownEntryError(studentID, entryID string) *RequestError {
	return &RequestError{
		Code:      ErrCodeUnknownEntry,
		Message:   "catalog entry not cached",
		StudentID: studentID,
		EntryID:   entryID,
	}
}

func newSessionNotFoundError(sessionID string) *RequestError {
	return &RequestError{
		Code:    ErrCodeSessionNotFound,
		Message: fmt.Sprintf("no active session %q", sessionID),
	}
}

func newInvalidInputError(format string, args ...any) *RequestError {
	return &RequestError{Code: ErrCodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}
