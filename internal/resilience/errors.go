package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ServiceErrorKind classifies failures from the external model service.
type ServiceErrorKind string

const (
	KindAuth        ServiceErrorKind = "auth"
	KindRateLimited ServiceErrorKind = "rate_limited"
	KindTimeout     ServiceErrorKind = "timeout"
	KindBadResponse ServiceErrorKind = "bad_response"
)

// ValidationError marks malformed input (zero-byte file, non-PDF, oversize).
// Fatal: never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ExternalServiceError marks a failure talking to the model service.
// Rate-limit and timeout kinds are transient; auth is not.
type ExternalServiceError struct {
	Kind ServiceErrorKind
	Err  error
}

func (e *ExternalServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("external service error (%s)", e.Kind)
	}
	return fmt.Sprintf("external service error (%s): %s", e.Kind, e.Err.Error())
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// NewExternalServiceError wraps err with a service failure kind.
func NewExternalServiceError(kind ServiceErrorKind, err error) *ExternalServiceError {
	return &ExternalServiceError{Kind: kind, Err: err}
}

// ParseError marks a malformed payload from the model service. Recovered
// locally by falling back to pattern extraction; never a hard failure.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError creates a ParseError wrapping an underlying cause.
func NewParseError(msg string, err error) *ParseError {
	return &ParseError{Msg: msg, Err: err}
}

// IsParseError reports whether the error chain contains a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsTransient reports whether err is safe to retry: rate-limited or timed-out
// service errors, network-level timeouts, and common connection failures.
// Validation, auth, and parse errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return false
	}

	var se *ExternalServiceError
	if errors.As(err, &se) {
		return se.Kind == KindRateLimited || se.Kind == KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"tls handshake timeout",
		"i/o timeout",
		"too many requests",
		"rate limit",
		"overloaded",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// ClassifyHTTPStatus maps an HTTP status from the model service to a
// ServiceErrorKind.
func ClassifyHTTPStatus(status int) ServiceErrorKind {
	switch status {
	case 401, 403:
		return KindAuth
	case 429:
		return KindRateLimited
	case 408, 504:
		return KindTimeout
	default:
		return KindBadResponse
	}
}
