package media

import (
	"errors"
	"fmt"
)

// ErrorCode identifies one kind of export failure
type ErrorCode string

const (
	CodeLoadTimeout ErrorCode = "LOAD_TIMEOUT"
	CodeLoad        ErrorCode = "LOAD_FAILED"
	CodeCapability  ErrorCode = "CAPABILITY_UNSUPPORTED"
	CodeEmptyTrack  ErrorCode = "EMPTY_TRACK"
	CodeRecord      ErrorCode = "RECORD_FAILED"
	CodeEmptyOutput ErrorCode = "EMPTY_OUTPUT"
	CodeBusy        ErrorCode = "BUSY"
	CodeUnknown     ErrorCode = "UNKNOWN"
)

// Error is the typed error returned by every stage of an export
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrLoadTimeout = &Error{Code: CodeLoadTimeout, Message: "media load timed out"}
	ErrLoad        = &Error{Code: CodeLoad, Message: "media failed to load"}
	ErrCapability  = &Error{Code: CodeCapability, Message: "live capture is not supported"}
	ErrEmptyTrack  = &Error{Code: CodeEmptyTrack, Message: "stream has no usable tracks"}
	ErrRecord      = &Error{Code: CodeRecord, Message: "recorder failed"}
	ErrEmptyOutput = &Error{Code: CodeEmptyOutput, Message: "recording produced no data"}
	ErrBusy        = &Error{Code: CodeBusy, Message: "an export is already in progress"}
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the ErrorCode from an error chain
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return CodeUnknown
}
