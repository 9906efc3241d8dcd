package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCompanionError_Error(t *testing.T) {
	err := &CompanionError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "case not found",
	}

	expected := "NOT_FOUND: case not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("case_id is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "case_id is required" {
		t.Errorf("Message = %q, want %q", err.Message, "case_id is required")
	}
}

func TestNewUnauthorized(t *testing.T) {
	err := NewUnauthorized("missing bearer token")

	if err.Code != ErrUnauthorized {
		t.Errorf("Code = %q, want %q", err.Code, ErrUnauthorized)
	}
	if err.Status != 401 {
		t.Errorf("Status = %d, want 401", err.Status)
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("automation", "AUTO-7")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Message != "automation not found: AUTO-7" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Details["identifier"] != "AUTO-7" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "AUTO-7")
	}
}

func TestNewUpstream(t *testing.T) {
	err := NewUpstream("backend-case-assistant", 503, "maintenance")

	if err.Code != ErrUpstream {
		t.Errorf("Code = %q, want %q", err.Code, ErrUpstream)
	}
	if err.Status != 503 {
		t.Errorf("Status = %d, want 503", err.Status)
	}
	if err.Details["body"] != "maintenance" {
		t.Errorf("Details[body] = %v", err.Details["body"])
	}
}

func TestNewBridge(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewBridge("engine-request", cause)

	if err.Code != ErrBridge {
		t.Errorf("Code = %q, want %q", err.Code, ErrBridge)
	}
	if err.Status != 502 {
		t.Errorf("Status = %d, want 502", err.Status)
	}
	if !stderrors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
}

func TestNewInternal(t *testing.T) {
	err := NewInternal(fmt.Errorf("database connection failed"))

	if err.Code != ErrInternal {
		t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
	}
	if err.Message != "database connection failed" {
		t.Errorf("Message = %q, want %q", err.Message, "database connection failed")
	}

	err = NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewNotFound("case", "x"), ErrNotFound, true},
		{"different code", NewNotFound("case", "x"), ErrInvalidRequest, false},
		{"wrapped", fmt.Errorf("fetch: %w", NewUnauthorized("no token")), ErrUnauthorized, true},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAs(t *testing.T) {
	orig := NewInvalidRequest("bad")
	if got := As(fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Errorf("As() did not unwrap the original error")
	}
	if got := As(fmt.Errorf("boom")); got.Code != ErrInternal {
		t.Errorf("As(plain).Code = %q, want %q", got.Code, ErrInternal)
	}
}
