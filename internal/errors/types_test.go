package errors

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "explicit transient error",
			err:      NewTransientError(errors.New("test"), "transient"),
			expected: true,
		},
		{
			name:     "explicit permanent error",
			err:      NewPermanentError(errors.New("test"), "permanent"),
			expected: false,
		},
		{
			name:     "google api rate limit",
			err:      &googleapi.Error{Code: 429, Message: "rate limit exceeded"},
			expected: true,
		},
		{
			name:     "google api server error",
			err:      &googleapi.Error{Code: 503, Message: "backend error"},
			expected: true,
		},
		{
			name:     "google api not found",
			err:      &googleapi.Error{Code: 404, Message: "message not found"},
			expected: false,
		},
		{
			name:     "wrapped google api error",
			err:      fmt.Errorf("fetch message: %w", &googleapi.Error{Code: 500}),
			expected: true,
		},
		{
			name:     "rate limit 429 in text",
			err:      fmt.Errorf("API error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 500 in text",
			err:      fmt.Errorf("HTTP 500: internal server error"),
			expected: true,
		},
		{
			name:     "server error 502 in text",
			err:      fmt.Errorf("502 bad gateway"),
			expected: true,
		},
		{
			name:     "timeout error",
			err:      fmt.Errorf("context deadline exceeded"),
			expected: true,
		},
		{
			name:     "connection refused",
			err:      fmt.Errorf("dial tcp 127.0.0.1:11434: connect: connection refused"),
			expected: true,
		},
		{
			name:     "connection refused on https port",
			err:      fmt.Errorf("dial tcp 10.0.0.1:443: connect: connection refused"),
			expected: true,
		},
		{
			name:     "unauthorized 401",
			err:      fmt.Errorf("HTTP 401: unauthorized"),
			expected: false,
		},
		{
			name:     "not found 404",
			err:      fmt.Errorf("HTTP 404: not found"),
			expected: false,
		},
		{
			name:     "bad request 400",
			err:      fmt.Errorf("HTTP 400: bad request"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsTransient(tt.err)
			if result != tt.expected {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "explicit permanent error",
			err:      NewPermanentError(errors.New("test"), "permanent"),
			expected: true,
		},
		{
			name:     "explicit transient error",
			err:      NewTransientError(errors.New("test"), "transient"),
			expected: false,
		},
		{
			name:     "google api bad request",
			err:      &googleapi.Error{Code: 400, Message: "invalid format"},
			expected: true,
		},
		{
			name:     "google api rate limit",
			err:      &googleapi.Error{Code: 429, Message: "rate limit exceeded"},
			expected: false,
		},
		{
			name:     "unauthorized 401",
			err:      fmt.Errorf("HTTP 401: unauthorized"),
			expected: true,
		},
		{
			name:     "forbidden 403",
			err:      fmt.Errorf("HTTP 403: forbidden"),
			expected: true,
		},
		{
			name:     "not found 404",
			err:      fmt.Errorf("HTTP 404: not found"),
			expected: true,
		},
		{
			name:     "permission denied",
			err:      fmt.Errorf("permission denied"),
			expected: true,
		},
		{
			name:     "rate limit 429",
			err:      fmt.Errorf("HTTP 429: rate limit exceeded"),
			expected: false,
		},
		{
			name:     "connection refused on https port",
			err:      fmt.Errorf("dial tcp 10.0.0.1:443: connect: connection refused"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsPermanent(tt.err)
			if result != tt.expected {
				t.Errorf("IsPermanent(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{
			name:     "transient error",
			err:      NewTransientError(errors.New("test"), "transient"),
			expected: ErrorTypeTransient,
		},
		{
			name:     "permanent error",
			err:      NewPermanentError(errors.New("test"), "permanent"),
			expected: ErrorTypePermanent,
		},
		{
			name:     "rate limit",
			err:      &googleapi.Error{Code: 429},
			expected: ErrorTypeTransient,
		},
		{
			name:     "unauthorized",
			err:      &googleapi.Error{Code: 401},
			expected: ErrorTypePermanent,
		},
		{
			name:     "unclassified",
			err:      errors.New("something odd"),
			expected: ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetErrorType(tt.err)
			if result != tt.expected {
				t.Errorf("GetErrorType(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestNetworkErrorDetection(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "timeout error",
			err:      &mockNetError{timeout: true},
			expected: true,
		},
		{
			name:     "syscall connection refused",
			err:      syscall.ECONNREFUSED,
			expected: true,
		},
		{
			name:     "syscall connection reset",
			err:      syscall.ECONNRESET,
			expected: true,
		},
		{
			name:     "regular error",
			err:      errors.New("regular error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsTransient(tt.err)
			if result != tt.expected {
				t.Errorf("IsTransient(%v) = %v, want %v (network detection)", tt.err, result, tt.expected)
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := errors.New("base error")

	t.Run("transient error wrapping", func(t *testing.T) {
		wrapped := NewTransientError(baseErr, "transient message")
		if !errors.Is(wrapped, baseErr) {
			t.Errorf("TransientError should wrap base error")
		}
	})

	t.Run("permanent error wrapping", func(t *testing.T) {
		wrapped := NewPermanentError(baseErr, "permanent message")
		if !errors.Is(wrapped, baseErr) {
			t.Errorf("PermanentError should wrap base error")
		}
	})
}

func TestExtractHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "400 bad request",
			err:      fmt.Errorf("API error 400: bad request"),
			expected: 400,
		},
		{
			name:     "429 rate limit",
			err:      fmt.Errorf("HTTP 429: Too Many Requests"),
			expected: 429,
		},
		{
			name:     "500 internal server error",
			err:      fmt.Errorf("status 500"),
			expected: 500,
		},
		{
			name:     "port number is not a status",
			err:      fmt.Errorf("dial tcp 10.0.0.1:443: connect: connection refused"),
			expected: 0,
		},
		{
			name:     "no status code",
			err:      fmt.Errorf("generic error"),
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractHTTPStatusCode(tt.err)
			if result != tt.expected {
				t.Errorf("extractHTTPStatusCode(%v) = %d, want %d", tt.err, result, tt.expected)
			}
		})
	}
}

// Mock implementations for testing

type mockNetError struct {
	timeout bool
}

func (e *mockNetError) Error() string   { return "mock network error" }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return false }
