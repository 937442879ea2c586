// Package errors provides the typed error used across the loader.
//
// Every failure that crosses a package boundary is a *UnifiedError carrying an
// ErrorType, so callers can decide whether to skip a record, abort a run or
// just log, without string matching.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType is the failure category callers branch on.
type ErrorType string

const (
	// Input errors
	ErrorTypeIO        ErrorType = "IO"
	ErrorTypeDecode    ErrorType = "DECODE"
	ErrorTypeTransform ErrorType = "TRANSFORM"

	// Store errors
	ErrorTypeStoreWrite ErrorType = "STORE_WRITE"
	ErrorTypeStoreRead  ErrorType = "STORE_READ"
	ErrorTypeConnection ErrorType = "CONNECTION"
	ErrorTypeConflict   ErrorType = "CONFLICT"

	// General errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeTimeout    ErrorType = "TIMEOUT"
	ErrorTypeInternal   ErrorType = "INTERNAL"
	ErrorTypeExternal   ErrorType = "EXTERNAL"
)

// ErrorSeverity drives the log level of a failure.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "LOW"
	SeverityMedium   ErrorSeverity = "MEDIUM"
	SeverityHigh     ErrorSeverity = "HIGH"
	SeverityCritical ErrorSeverity = "CRITICAL"
)

// UnifiedError is the single error type of the loader.
type UnifiedError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	Operation string `json:"operation,omitempty"`
	Resource  string `json:"resource,omitempty"`

	Severity  ErrorSeverity `json:"severity"`
	Retryable bool          `json:"retryable"`
	Cause     error         `json:"-"`

	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

func (e *UnifiedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s", e.Type, e.Code, e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	if e.Cause != nil && e.Details == "" {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *UnifiedError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder assembles a UnifiedError.
type ErrorBuilder struct {
	ue *UnifiedError
}

// defaults per type: severity and whether a retry may succeed.
var defaults = map[ErrorType]struct {
	severity  ErrorSeverity
	retryable bool
}{
	ErrorTypeIO:         {SeverityCritical, false},
	ErrorTypeDecode:     {SeverityLow, false},
	ErrorTypeTransform:  {SeverityLow, false},
	ErrorTypeStoreWrite: {SeverityMedium, false},
	ErrorTypeStoreRead:  {SeverityMedium, false},
	ErrorTypeConnection: {SeverityHigh, true},
	ErrorTypeConflict:   {SeverityMedium, false},
	ErrorTypeValidation: {SeverityLow, false},
	ErrorTypeNotFound:   {SeverityLow, false},
	ErrorTypeTimeout:    {SeverityMedium, true},
	ErrorTypeInternal:   {SeverityHigh, false},
	ErrorTypeExternal:   {SeverityMedium, true},
}

// NewError starts an error of errType. Severity and retryability come from
// the type and can be overridden.
func NewError(errType ErrorType, code, message string) *ErrorBuilder {
	return build(errType, code, message)
}

// build records the location of the caller of its caller.
func build(errType ErrorType, code, message string) *ErrorBuilder {
	_, file, line, _ := runtime.Caller(2)
	d, ok := defaults[errType]
	if !ok {
		d.severity = SeverityMedium
	}
	return &ErrorBuilder{ue: &UnifiedError{
		Type:      errType,
		Code:      code,
		Message:   message,
		Severity:  d.severity,
		Retryable: d.retryable,
		File:      file,
		Line:      line,
	}}
}

func (b *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	b.ue.Details = details
	return b
}

// WithOperation names the store or pipeline operation that failed.
func (b *ErrorBuilder) WithOperation(op string) *ErrorBuilder {
	b.ue.Operation = op
	return b
}

// WithResource names the table, file or record involved.
func (b *ErrorBuilder) WithResource(resource string) *ErrorBuilder {
	b.ue.Resource = resource
	return b
}

func (b *ErrorBuilder) WithSeverity(s ErrorSeverity) *ErrorBuilder {
	b.ue.Severity = s
	return b
}

func (b *ErrorBuilder) WithRetryable(retryable bool) *ErrorBuilder {
	b.ue.Retryable = retryable
	return b
}

func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.ue.Cause = cause
	return b
}

// Build returns the error.
func (b *ErrorBuilder) Build() *UnifiedError {
	return b.ue
}

// IO is a failure to open or read an input file. Only an open failure aborts
// a load.
func IO(code, message string) *ErrorBuilder { return build(ErrorTypeIO, code, message) }

// Decode is a line that is not a JSON object.
func Decode(code, message string) *ErrorBuilder { return build(ErrorTypeDecode, code, message) }

// Transform is a record whose shape cannot be mapped to rows.
func Transform(code, message string) *ErrorBuilder { return build(ErrorTypeTransform, code, message) }

// StoreWrite is a write the store rejected.
func StoreWrite(code, message string) *ErrorBuilder { return build(ErrorTypeStoreWrite, code, message) }

// StoreRead is a failed partition read.
func StoreRead(code, message string) *ErrorBuilder { return build(ErrorTypeStoreRead, code, message) }

func Connection(code, message string) *ErrorBuilder { return build(ErrorTypeConnection, code, message) }

// Conflict is an operation issued in the wrong lifecycle state.
func Conflict(code, message string) *ErrorBuilder { return build(ErrorTypeConflict, code, message) }

func Validation(code, message string) *ErrorBuilder { return build(ErrorTypeValidation, code, message) }

func NotFound(code, message string) *ErrorBuilder { return build(ErrorTypeNotFound, code, message) }

func Timeout(code, message string) *ErrorBuilder { return build(ErrorTypeTimeout, code, message) }

func Internal(code, message string) *ErrorBuilder { return build(ErrorTypeInternal, code, message) }

// External is a failure of a collaborating service such as the event bus.
func External(code, message string) *ErrorBuilder { return build(ErrorTypeExternal, code, message) }

func asUnified(err error) (*UnifiedError, bool) {
	var ue *UnifiedError
	ok := errors.As(err, &ue)
	return ue, ok
}

// IsType reports whether err is a UnifiedError of errType.
func IsType(err error, errType ErrorType) bool {
	ue, ok := asUnified(err)
	return ok && ue.Type == errType
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	if ue, ok := asUnified(err); ok {
		return ue.Type
	}
	return ErrorTypeInternal
}

func IsIO(err error) bool         { return IsType(err, ErrorTypeIO) }
func IsDecode(err error) bool     { return IsType(err, ErrorTypeDecode) }
func IsTransform(err error) bool  { return IsType(err, ErrorTypeTransform) }
func IsStoreWrite(err error) bool { return IsType(err, ErrorTypeStoreWrite) }
func IsConflict(err error) bool   { return IsType(err, ErrorTypeConflict) }
func IsNotFound(err error) bool   { return IsType(err, ErrorTypeNotFound) }
func IsTimeout(err error) bool    { return IsType(err, ErrorTypeTimeout) }

func IsRetryable(err error) bool {
	ue, ok := asUnified(err)
	return ok && ue.Retryable
}

// Wrap adds operation context to err. A UnifiedError keeps its type, code and
// origin; anything else becomes INTERNAL/WRAP_ERROR.
func Wrap(err error, operation, message string) *UnifiedError {
	if err == nil {
		return nil
	}
	if ue, ok := asUnified(err); ok {
		wrapped := *ue
		wrapped.Message = message
		wrapped.Details = ue.Message
		wrapped.Operation = operation
		wrapped.Cause = err
		return &wrapped
	}

	_, file, line, _ := runtime.Caller(1)
	return &UnifiedError{
		Type:      ErrorTypeInternal,
		Code:      "WRAP_ERROR",
		Message:   message,
		Details:   err.Error(),
		Operation: operation,
		Severity:  SeverityMedium,
		Cause:     err,
		File:      file,
		Line:      line,
	}
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// New returns a plain error for sentinel values.
func New(text string) error { return errors.New(text) }
