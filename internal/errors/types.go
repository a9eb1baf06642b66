package errors

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"google.golang.org/api/googleapi"
)

// ErrorType categorizes an error for retry decisions.
type ErrorType int

const (
	// ErrorTypeUnknown is an error that could not be classified.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeTransient errors may succeed on retry (rate limits, server errors, timeouts).
	ErrorTypeTransient
	// ErrorTypePermanent errors will not succeed on retry (bad requests, missing resources).
	ErrorTypePermanent
)

// String returns a human-readable name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// TransientError marks an error as retryable regardless of its content.
type TransientError struct {
	Err     error
	Message string
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err so that IsTransient reports true.
func NewTransientError(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

// PermanentError marks an error as not retryable regardless of its content.
type PermanentError struct {
	Err     error
	Message string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps err so that IsPermanent reports true.
func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

// transientPhrases are network failure fragments that indicate a retryable
// condition when no structured error type is available.
var transientPhrases = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"timed out",
	"temporary failure",
	"deadline exceeded",
}

// IsTransient reports whether err is worth retrying.
//
// Explicit TransientError/PermanentError wrappers take precedence. Google API
// errors are classified by status code: 429 and 5xx are transient, other 4xx
// are not. Network timeouts, connection resets and refused connections count
// as transient. As a last resort the error text is inspected for status codes
// and well-known network failure phrases.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}

	if code := extractHTTPStatusCode(err); code != 0 {
		return code == 429 || code >= 500
	}

	return false
}

// IsPermanent reports whether err should never be retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return true
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			return false
		}
	}

	if code := extractHTTPStatusCode(err); code != 0 {
		return code >= 400 && code < 500 && code != 429
	}

	for _, phrase := range []string{
		"not found",
		"permission denied",
		"unauthorized",
		"invalid argument",
	} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}

	return false
}

// GetErrorType classifies err into one of the error types.
func GetErrorType(err error) ErrorType {
	switch {
	case IsTransient(err):
		return ErrorTypeTransient
	case IsPermanent(err):
		return ErrorTypePermanent
	default:
		return ErrorTypeUnknown
	}
}

// statusCodePattern matches a 4xx/5xx status code in an error message.
// A code preceded by ':', '.' or another digit is rejected so that ports
// and IP addresses (dial tcp 10.0.0.1:443) are not mistaken for statuses.
var statusCodePattern = regexp.MustCompile(`(?:^|[^:.\d])([45][0-9]{2})\b`)

// extractHTTPStatusCode pulls an HTTP status code out of an error message.
// Returns 0 when no 4xx/5xx code is present.
func extractHTTPStatusCode(err error) int {
	if err == nil {
		return 0
	}
	match := statusCodePattern.FindStringSubmatch(err.Error())
	if match == nil {
		return 0
	}
	code, convErr := strconv.Atoi(match[1])
	if convErr != nil {
		return 0
	}
	return code
}
