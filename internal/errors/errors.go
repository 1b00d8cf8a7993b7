package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Quire error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"  // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"        // 404
	ErrUnknownSection  ErrorCode = "UNKNOWN_SECTION"  // 422
	ErrEmptyDraft      ErrorCode = "EMPTY_DRAFT"      // 422
	ErrNoMatch         ErrorCode = "NO_MATCH"         // 404
	ErrAmbiguousMatch  ErrorCode = "AMBIGUOUS_MATCH"  // 409
	ErrTaskNotFound    ErrorCode = "TASK_NOT_FOUND"   // 404
	ErrDraftTooLarge   ErrorCode = "DRAFT_TOO_LARGE"  // 413
	ErrDraftConflict   ErrorCode = "DRAFT_CONFLICT"   // 409
	ErrTurnInterrupted ErrorCode = "TURN_INTERRUPTED" // 503
	ErrInternal        ErrorCode = "INTERNAL"         // 500
)

// QuireError represents a structured error with code, status, and details.
type QuireError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *QuireError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Recoverable reports whether the caller can retry or ask the user to clarify.
func (e *QuireError) Recoverable() bool {
	return e.Code != ErrInternal
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *QuireError {
	return &QuireError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing session, user or entry.
func NewNotFound(kind, identifier string) *QuireError {
	return &QuireError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewUnknownSection creates a 422 error listing section names that matched
// neither a section nor an alias of the active template.
func NewUnknownSection(unresolved, available []string) *QuireError {
	return &QuireError{
		Code:    ErrUnknownSection,
		Status:  422,
		Message: fmt.Sprintf("unknown section(s): %v", unresolved),
		Details: map[string]any{"unresolved": unresolved, "available": available},
	}
}

// NewEmptyDraft creates a 422 error when finalize finds nothing to persist.
func NewEmptyDraft(sessionID string) *QuireError {
	return &QuireError{
		Code:    ErrEmptyDraft,
		Status:  422,
		Message: "draft has no content to finalize",
		Details: map[string]any{"session_id": sessionID},
	}
}

// NewNoMatch creates a 404 error when no pending task is close enough to a phrase.
func NewNoMatch(phrase string, best float64) *QuireError {
	return &QuireError{
		Code:    ErrNoMatch,
		Status:  404,
		Message: fmt.Sprintf("no pending task matches %q", phrase),
		Details: map[string]any{"phrase": phrase, "best_score": best},
	}
}

// NewAmbiguousMatch creates a 409 error naming every tied candidate.
func NewAmbiguousMatch(phrase string, candidates []map[string]any) *QuireError {
	return &QuireError{
		Code:    ErrAmbiguousMatch,
		Status:  409,
		Message: fmt.Sprintf("%d pending tasks match %q equally well", len(candidates), phrase),
		Details: map[string]any{"phrase": phrase, "candidates": candidates},
	}
}

// NewTaskNotFound creates a 404 error when an id is not a pending task of the user.
func NewTaskNotFound(id string) *QuireError {
	return &QuireError{
		Code:    ErrTaskNotFound,
		Status:  404,
		Message: fmt.Sprintf("pending task not found: %s", id),
		Details: map[string]any{"task_id": id},
	}
}

// NewDraftTooLarge creates a 413 error when a contribution would exceed the draft limit.
func NewDraftTooLarge(max, actual int) *QuireError {
	return &QuireError{
		Code:    ErrDraftTooLarge,
		Status:  413,
		Message: fmt.Sprintf("draft exceeds maximum size: %d chars (max %d)", actual, max),
		Details: map[string]any{"max_chars": max, "actual_chars": actual},
	}
}

// NewDraftConflict creates a 409 error when a draft checkpoint changed
// between reading and writing it. The contribution was not applied.
func NewDraftConflict(sessionID string) *QuireError {
	return &QuireError{
		Code:    ErrDraftConflict,
		Status:  409,
		Message: fmt.Sprintf("draft was changed concurrently: %s", sessionID),
		Details: map[string]any{"session_id": sessionID},
	}
}

// NewTurnInterrupted creates a 503 error for a turn that stopped part way.
// Applied operations stay applied; the caller may retry the rest.
func NewTurnInterrupted(applied, skipped int, cause error) *QuireError {
	msg := "turn interrupted"
	if cause != nil {
		msg = fmt.Sprintf("turn interrupted: %v", cause)
	}
	return &QuireError{
		Code:    ErrTurnInterrupted,
		Status:  503,
		Message: msg,
		Details: map[string]any{"applied": applied, "skipped": skipped},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The cause is kept in Details for logging and never shown to callers.
func NewInternal(err error) *QuireError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &QuireError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// As returns the QuireError in err's chain, if any.
func As(err error) (*QuireError, bool) {
	var qErr *QuireError
	if stderrors.As(err, &qErr) {
		return qErr, true
	}
	return nil, false
}

// Is checks if an error is a QuireError with the given code.
func Is(err error, code ErrorCode) bool {
	if qErr, ok := As(err); ok {
		return qErr.Code == code
	}
	return false
}
