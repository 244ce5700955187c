package request

import (
	"errors"
	"fmt"
	"time"
)

// Error types reported in ClientError.Type. Each pipeline failure maps to
// exactly one of them.
const (
	ErrorTypeDuplicateCancelled = "DuplicateCancelled"
	ErrorTypeBusiness           = "Business"
	ErrorTypeAuthExpired        = "AuthExpired"
	ErrorTypeTransport          = "Transport"
	ErrorTypeEmptyExport        = "EmptyExport"
	ErrorTypeRefreshFailed      = "RefreshFailed"
	ErrorTypeValidation         = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrDuplicateCancelled is the cancellation cause of a call superseded by a
	// newer call with the same fingerprint.
	ErrDuplicateCancelled = errors.New("request: duplicate cancelled")

	// ErrEmptyExport is returned when a download succeeds with a zero-length body.
	ErrEmptyExport = errors.New("request: exported file is empty")

	// ErrNoRefreshToken is returned by the refresher when no durable refresh token exists.
	ErrNoRefreshToken = errors.New("request: no refresh token")

	// ErrRefreshFailed wraps every failure of the refresh call.
	ErrRefreshFailed = errors.New("request: token refresh failed")
)

// ClientError is the single error type returned by Client.Do. Type selects the
// variant; Code and StatusCode are set when the server answered.
type ClientError struct {
	Type        string
	Message     string
	Cause       error
	Code        int
	StatusCode  int
	RequestID   string
	Method      string
	URL         string
	Fingerprint string
	Timestamp   time.Time
	Duration    time.Duration
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s [code %d]", msg, e.Code)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Fingerprint != "" {
		info += fmt.Sprintf("Fingerprint: %s\n", e.Fingerprint)
	}
	if e.Code != 0 {
		info += fmt.Sprintf("Business Code: %d\n", e.Code)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsDuplicateCancelled reports whether err is the outcome of a call that was
// superseded by an identical newer call.
func IsDuplicateCancelled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicateCancelled) {
		return true
	}
	return errorType(err) == ErrorTypeDuplicateCancelled
}

// IsBusiness reports whether err carries a non-success business envelope.
func IsBusiness(err error) bool {
	switch errorType(err) {
	case ErrorTypeBusiness, ErrorTypeAuthExpired:
		return true
	}
	return false
}

// BusinessCode extracts the envelope code from err, if any.
func BusinessCode(err error) (int, bool) {
	var clientErr *ClientError
	if errors.As(err, &clientErr) && clientErr.Code != 0 {
		return clientErr.Code, true
	}
	return 0, false
}

func errorType(err error) string {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type
	}
	return ""
}
