package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 10

// Error is a coded failure. Code picks the HTTP status; Message and Details
// end up in the JSON error body.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
	// Stack is logged for 5xx responses only.
	Stack string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error carrying the code's default message.
func New(code ErrorCode) *Error {
	return build(code, nil, code.Message())
}

// Newf creates an Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return build(code, nil, fmt.Sprintf(format, args...))
}

// Wrapf attaches code and a formatted message to err. A nil err stays nil.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return build(code, err, fmt.Sprintf(format, args...))
}

func build(code ErrorCode, cause error, msg string) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
		Stack:   callers(3),
	}
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// WithDetail adds one entry to the error body's details object.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetCode returns the code carried anywhere in err's chain. Uncoded errors
// are InternalServerError.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	if e := find(err); e != nil {
		return e.Code
	}
	return InternalServerError
}

// GetError returns the coded error in err's chain, or wraps err as an
// InternalServerError that keeps its text.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	if e := find(err); e != nil {
		return e
	}
	return build(InternalServerError, err, err.Error())
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	e := find(err)
	return e != nil && e.Code == code
}

func find(err error) *Error {
	var e *Error
	if err != nil && stderrors.As(err, &e) {
		return e
	}
	return nil
}

func callers(skip int) string {
	var pcs [maxStackDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	if n == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&b, "\n\t%s:%d %s", frame.File, frame.Line, frame.Function)
		}
		if !more {
			return b.String()
		}
	}
}

// InvalidVerdictError reports a submitted test result that is not Pass or Fail.
func InvalidVerdictError(raw string) *Error {
	return New(InvalidVerdict).WithDetail("test_result", raw)
}

// StorageReadFailure wraps a failed read of persisted state.
func StorageReadFailure(err error, what string) *Error {
	return Wrapf(err, StorageReadFailed, "read %s failed: %v", what, err).WithDetail("op", "read")
}

// StorageWriteFailure wraps a failed write of persisted state.
func StorageWriteFailure(err error, what string) *Error {
	return Wrapf(err, StorageWriteFailed, "write %s failed: %v", what, err).WithDetail("op", "write")
}
