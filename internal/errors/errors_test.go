package errors

import (
	"fmt"
	"testing"
)

func TestQuireError_Error(t *testing.T) {
	err := &QuireError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "session not found",
	}

	expected := "NOT_FOUND: session not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("user_id is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "user_id is required" {
		t.Errorf("Message = %q, want %q", err.Message, "user_id is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("session", "s-1")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "s-1" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "s-1")
	}
	if err.Details["kind"] != "session" {
		t.Errorf("Details[kind] = %v, want %q", err.Details["kind"], "session")
	}
}

func TestNewUnknownSection(t *testing.T) {
	err := NewUnknownSection([]string{"Dreams"}, []string{"Events", "Mood"})

	if err.Code != ErrUnknownSection {
		t.Errorf("Code = %q, want %q", err.Code, ErrUnknownSection)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
	unresolved, ok := err.Details["unresolved"].([]string)
	if !ok || len(unresolved) != 1 || unresolved[0] != "Dreams" {
		t.Errorf("Details[unresolved] = %v, want [Dreams]", err.Details["unresolved"])
	}
}

func TestNewEmptyDraft(t *testing.T) {
	err := NewEmptyDraft("s-1")

	if err.Code != ErrEmptyDraft {
		t.Errorf("Code = %q, want %q", err.Code, ErrEmptyDraft)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
}

func TestNewAmbiguousMatch(t *testing.T) {
	candidates := []map[string]any{
		{"id": "a", "title": "Call mom"},
		{"id": "b", "title": "Call mom back"},
	}
	err := NewAmbiguousMatch("call mom", candidates)

	if err.Code != ErrAmbiguousMatch {
		t.Errorf("Code = %q, want %q", err.Code, ErrAmbiguousMatch)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
	got, ok := err.Details["candidates"].([]map[string]any)
	if !ok || len(got) != 2 {
		t.Errorf("Details[candidates] = %v, want 2 candidates", err.Details["candidates"])
	}
}

func TestNewNoMatchAndTaskNotFound(t *testing.T) {
	if err := NewNoMatch("walk the dog", 0.2); err.Code != ErrNoMatch || err.Status != 404 {
		t.Errorf("NewNoMatch = %s/%d, want %s/404", err.Code, err.Status, ErrNoMatch)
	}
	if err := NewTaskNotFound("t-1"); err.Code != ErrTaskNotFound || err.Details["task_id"] != "t-1" {
		t.Errorf("NewTaskNotFound = %v", err)
	}
}

func TestNewDraftTooLarge(t *testing.T) {
	err := NewDraftTooLarge(100, 150)

	if err.Status != 413 {
		t.Errorf("Status = %d, want 413", err.Status)
	}
	if err.Details["max_chars"] != 100 {
		t.Errorf("Details[max_chars] = %v, want 100", err.Details["max_chars"])
	}
	if err.Details["actual_chars"] != 150 {
		t.Errorf("Details[actual_chars] = %v, want 150", err.Details["actual_chars"])
	}
}

func TestNewDraftConflict(t *testing.T) {
	err := NewDraftConflict("s-1")

	if err.Code != ErrDraftConflict || err.Status != 409 {
		t.Errorf("NewDraftConflict = %v (status %d)", err, err.Status)
	}
	if !err.Recoverable() {
		t.Error("Recoverable() = false, want true")
	}
	if err.Details["session_id"] != "s-1" {
		t.Errorf("Details[session_id] = %v, want s-1", err.Details["session_id"])
	}
}

func TestNewTurnInterrupted(t *testing.T) {
	err := NewTurnInterrupted(2, 1, fmt.Errorf("context canceled"))

	if err.Code != ErrTurnInterrupted {
		t.Errorf("Code = %q, want %q", err.Code, ErrTurnInterrupted)
	}
	if !err.Recoverable() {
		t.Error("Recoverable() = false, want true")
	}
	if err.Details["applied"] != 2 || err.Details["skipped"] != 1 {
		t.Errorf("Details = %v, want applied=2 skipped=1", err.Details)
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		err := NewInternal(fmt.Errorf("database connection failed"))

		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Status != 500 {
			t.Errorf("Status = %d, want 500", err.Status)
		}
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if err.Details["internal_error"] != "database connection failed" {
			t.Errorf("Details[internal_error] = %q, want %q", err.Details["internal_error"], "database connection failed")
		}
		if err.Recoverable() {
			t.Error("Recoverable() = true, want false")
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)

		if err.Details == nil {
			t.Error("Details should not be nil")
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		err := NewNotFound("session", "test")
		if !Is(err, ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		err := NewNotFound("session", "test")
		if Is(err, ErrTaskNotFound) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("non-QuireError", func(t *testing.T) {
		err := fmt.Errorf("plain error")
		if Is(err, ErrNotFound) {
			t.Error("Is() = true, want false for non-QuireError")
		}
	})

	t.Run("wrapped QuireError", func(t *testing.T) {
		inner := NewEmptyDraft("s")
		wrapped := fmt.Errorf("invocations[0]: %w", inner)
		if !Is(wrapped, ErrEmptyDraft) {
			t.Error("Is() = false, want true for wrapped QuireError")
		}
		qErr, ok := As(wrapped)
		if !ok || qErr != inner {
			t.Errorf("As() = %v, %v; want inner error", qErr, ok)
		}
	})
}
