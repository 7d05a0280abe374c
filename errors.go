package main

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds that callers can match with errors.Is
var (
	ErrEmptyInput      = errors.New("no code provided")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrTransport       = errors.New("backend unreachable")
	ErrStreamProtocol  = errors.New("stream protocol error")
)

// UserError represents an error that should be displayed to the user with helpful context
type UserError struct {
	Kind       error
	Message    string
	Cause      error
	Suggestion string
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the error kind this UserError was built with
func (e *UserError) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// FormatUserError formats an error for user display with colors and suggestions
func FormatUserError(err error) string {
	var sb strings.Builder

	var userErr *UserError
	if errors.As(err, &userErr) {
		sb.WriteString(fmt.Sprintf("\033[91mError:\033[0m %s\n", userErr.Message))
		if userErr.Cause != nil {
			sb.WriteString(fmt.Sprintf("       Cause: %v\n", userErr.Cause))
		}
		if userErr.Suggestion != "" {
			sb.WriteString(fmt.Sprintf("\n\033[93mSuggestion:\033[0m %s\n", userErr.Suggestion))
		}
	} else {
		errStr := err.Error()
		sb.WriteString(fmt.Sprintf("\033[91mError:\033[0m %s\n", errStr))

		suggestion := getSuggestionForError(errStr)
		if suggestion != "" {
			sb.WriteString(fmt.Sprintf("\n\033[93mSuggestion:\033[0m %s\n", suggestion))
		}
	}

	return sb.String()
}

// getSuggestionForError returns a helpful suggestion based on error content
func getSuggestionForError(errStr string) string {
	errLower := strings.ToLower(errStr)

	if strings.Contains(errLower, "connection refused") ||
		strings.Contains(errLower, "no such host") {
		return "The analysis backend is not reachable. Start it (default port 5001) or set SENTINEL_API_URL."
	}

	if strings.Contains(errLower, "status 413") || strings.Contains(errLower, "too large") {
		return "Split the file or scan a smaller excerpt. The engine accepts at most 50,000 characters."
	}

	if strings.Contains(errLower, "status 5") {
		return "The backend failed while processing the request. Check its logs and retry."
	}

	// Bedrock deep-scan provider
	if strings.Contains(errLower, "no valid credential") ||
		strings.Contains(errLower, "unable to sign request") ||
		strings.Contains(errLower, "security token") {
		return "Check your AWS credentials. Run 'aws configure' or set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY."
	}

	if strings.Contains(errLower, "access denied") ||
		strings.Contains(errLower, "not authorized") {
		return "Your AWS credentials may lack bedrock:InvokeModelWithResponseStream permission."
	}

	if strings.Contains(errLower, "throttl") || strings.Contains(errLower, "rate limit") {
		return "You're being rate-limited. Wait a moment and try again."
	}

	if strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline exceeded") {
		return "The operation timed out. The backend may be overloaded; try again."
	}

	if strings.Contains(errLower, "network") {
		return "Check your network connection. You may be offline or behind a firewall."
	}

	return ""
}

// ErrNoCode creates the error returned for blank input
func ErrNoCode() *UserError {
	return &UserError{
		Kind:    ErrEmptyInput,
		Message: "No code provided.",
	}
}

// ErrPayload creates the error returned when input exceeds the payload limit
func ErrPayload(limit int) *UserError {
	return &UserError{
		Kind:       ErrPayloadTooLarge,
		Message:    fmt.Sprintf("Payload too large. Limit code to %s characters.", groupThousands(limit)),
		Suggestion: "Scan a smaller excerpt, or use 'sentinel batch' to scan a directory file by file.",
	}
}

// ErrBackendOffline creates the error for any failed exchange with the analysis backend
func ErrBackendOffline(baseURL string, cause error) *UserError {
	return &UserError{
		Kind:    ErrTransport,
		Message: fmt.Sprintf("Intelligence Link Offline. Check Backend @ %s.", baseURL),
		Cause:   cause,
		Suggestion: `Possible issues:
       1. The backend is not running (default http://localhost:5001)
       2. SENTINEL_API_URL points at the wrong host
       3. The backend rejected the request (see cause)`,
	}
}

// ErrBedrockConfig creates an error for AWS configuration issues
func ErrBedrockConfig(cause error) *UserError {
	return &UserError{
		Kind:    ErrTransport,
		Message: "Failed to initialize AWS configuration for Bedrock deep scans",
		Cause:   cause,
		Suggestion: `Check your AWS credentials:
       1. Run 'aws configure' to set up credentials
       2. Or set AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_REGION
       3. Or switch back with SENTINEL_DEEP_SCAN_PROVIDER=backend`,
	}
}

// groupThousands renders 50000 as "50,000"
func groupThousands(n int) string {
	if n < 0 {
		return "-" + groupThousands(-n)
	}
	s := fmt.Sprintf("%d", n)
	var sb strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		sb.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}
