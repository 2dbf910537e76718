// Package errors provides structured error handling for the extractor
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal errors such as misuse of a component
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents missing or invalid configuration
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeAuthentication represents rejected credentials (HTTP 401/403)
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeTransient represents an API failure that persisted after all retries
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeRateLimit represents a rate limited response
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection represents network level errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeProtocol represents an API response that does not match the expected shape
	ErrorTypeProtocol ErrorType = "protocol"
	// ErrorTypeMalformedData represents a nested value with an unexpected shape
	ErrorTypeMalformedData ErrorType = "malformed_data"
	// ErrorTypeData represents record processing errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns a detail value, searching wrapped errors outward-in
func (e *Error) Detail(key string) (interface{}, bool) {
	for cur := e; cur != nil; {
		if v, ok := cur.Details[key]; ok {
			return v, true
		}
		var next *Error
		if cur.Cause == nil || !errors.As(cur.Cause, &next) {
			break
		}
		cur = next
	}
	return nil, false
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if the request that produced err may be repeated
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeConnection, ErrorTypeTransient:
		return true
	default:
		return false
	}
}

// IsType checks if the outermost structured error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// HasType reports whether any structured error in the chain has the given type
func HasType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsAuth reports whether err is an authentication failure
func IsAuth(err error) bool { return HasType(err, ErrorTypeAuthentication) }

// IsProtocol reports whether err is a protocol violation by the API
func IsProtocol(err error) bool { return HasType(err, ErrorTypeProtocol) }

// IsTransient reports whether err is an exhausted transient failure
func IsTransient(err error) bool { return HasType(err, ErrorTypeTransient) }

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
