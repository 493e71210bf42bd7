// Package errors provides structured error handling for snowbridge.
//
// The bridge has exactly three failure channels a caller may need to tell
// apart: configuration problems detected before any remote call, failures
// against the REDCap source, and failures against the Snowflake sink. Each
// kind carries its cause and optional details so the orchestration layer can
// render a message without string-matching.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeConfig represents missing or invalid configuration,
	// detected before any network attempt.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeFetch represents any failure reaching, authenticating to,
	// or parsing a response from the source API.
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypeLoad represents a failure during the sink session: DDL,
	// DML, bulk-write transport, or a loader-reported non-success.
	ErrorTypeLoad ErrorType = "load"
	// ErrorTypeInternal represents errors outside the three pipeline
	// channels (template rendering, session plumbing).
	ErrorTypeInternal ErrorType = "internal"
)

// Error is a structured error with a type, an optional cause and details.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is a single frame in the call stack captured at creation.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context. Returns nil when
// err is nil so call sites can wrap unconditionally.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// Preserve the original stack when re-wrapping one of our own.
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existing.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// NewMissingSettings builds the aggregated configuration error for required
// settings that resolved empty. The message enumerates every missing name,
// not just the first.
func NewMissingSettings(names []string) *Error {
	e := &Error{
		Type:    ErrorTypeConfig,
		Message: fmt.Sprintf("missing settings: %s", strings.Join(names, ", ")),
		Stack:   captureStack(2),
	}
	return e.WithDetail("missing", names)
}

// MissingSettings returns the setting names attached by NewMissingSettings,
// or nil when err is not an aggregated configuration error.
func MissingSettings(err error) []string {
	var e *Error
	if !errors.As(err, &e) || e.Type != ErrorTypeConfig || e.Details == nil {
		return nil
	}
	names, _ := e.Details["missing"].([]string)
	return names
}

// IsType checks whether the error is of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// captureStack captures the current call stack.
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
