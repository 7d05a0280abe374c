package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUserError(t *testing.T) {
	t.Run("error without cause", func(t *testing.T) {
		err := &UserError{Message: "test error"}
		if err.Error() != "test error" {
			t.Errorf("Error() = %q, want %q", err.Error(), "test error")
		}
	})

	t.Run("error with cause", func(t *testing.T) {
		cause := errors.New("underlying error")
		err := &UserError{Message: "test error", Cause: cause}
		expected := "test error: underlying error"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
	})

	t.Run("unwrap returns cause", func(t *testing.T) {
		cause := errors.New("underlying error")
		err := &UserError{Message: "test error", Cause: cause}
		if err.Unwrap() != cause {
			t.Error("Unwrap() did not return the cause")
		}
	})

	t.Run("kind matches with errors.Is", func(t *testing.T) {
		err := fmt.Errorf("scan: %w", ErrPayload(50000))
		if !errors.Is(err, ErrPayloadTooLarge) {
			t.Error("errors.Is(err, ErrPayloadTooLarge) = false")
		}
		if errors.Is(err, ErrTransport) {
			t.Error("payload error should not match ErrTransport")
		}
	})

	t.Run("transport error keeps cause chain", func(t *testing.T) {
		cause := errors.New("dial tcp: connection refused")
		err := ErrBackendOffline("http://localhost:5001", cause)
		if !errors.Is(err, ErrTransport) {
			t.Error("errors.Is(err, ErrTransport) = false")
		}
		if !errors.Is(err, cause) {
			t.Error("errors.Is(err, cause) = false")
		}
	})
}

func TestErrPayloadMessage(t *testing.T) {
	got := ErrPayload(50000).Message
	want := "Payload too large. Limit code to 50,000 characters."
	if got != want {
		t.Errorf("Message = %q, want %q", got, want)
	}
}

func TestGroupThousands(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{50000, "50,000"},
		{1234567, "1,234,567"},
		{-1500, "-1,500"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := groupThousands(tt.in); got != tt.want {
				t.Errorf("groupThousands(%d) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	t.Run("formats UserError with suggestion", func(t *testing.T) {
		err := &UserError{
			Message:    "test error",
			Suggestion: "try this fix",
		}
		output := FormatUserError(err)
		if !strings.Contains(output, "test error") {
			t.Error("output should contain error message")
		}
		if !strings.Contains(output, "try this fix") {
			t.Error("output should contain suggestion")
		}
	})

	t.Run("formats generic error with auto-suggestion", func(t *testing.T) {
		err := errors.New("dial tcp 127.0.0.1:5001: connect: connection refused")
		output := FormatUserError(err)
		if !strings.Contains(output, "connection refused") {
			t.Error("output should contain error message")
		}
		if !strings.Contains(output, "SENTINEL_API_URL") {
			t.Error("output should point at SENTINEL_API_URL")
		}
	})
}

func TestGetSuggestionForError(t *testing.T) {
	tests := []struct {
		errStr string
		want   string
	}{
		{"no valid credential sources", "aws configure"},
		{"AccessDenied: not authorized", "bedrock:InvokeModelWithResponseStream"},
		{"ThrottlingException", "rate-limited"},
		{"context deadline exceeded", "timed out"},
		{"unexpected status 500", "backend failed"},
		{"something unrelated", ""},
	}
	for _, tt := range tests {
		t.Run(tt.errStr, func(t *testing.T) {
			got := getSuggestionForError(tt.errStr)
			if tt.want == "" {
				if got != "" {
					t.Errorf("getSuggestionForError(%q) = %q, want empty", tt.errStr, got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("getSuggestionForError(%q) = %q, want it to contain %q", tt.errStr, got, tt.want)
			}
		})
	}
}
