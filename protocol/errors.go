package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode identifies why a protocol operation failed. Every completion in
// the engine carries one, so callers can tell a dropped connection from a
// garbled frame.
type ErrorCode int

const (
	CodeOK ErrorCode = iota

	// CodeUsage is a caller contract violation, reported synchronously.
	CodeUsage

	// CodeTransport covers transport error codes and short or empty reads.
	CodeTransport

	CodeMalformedHeader
	CodeMalformedFieldHeader

	// CodeInvalidFieldLength is reported for a non-numeric declared length
	// and also for a declared length of zero.
	CodeInvalidFieldLength

	// CodeValueLengthMismatch means the transport returned a different
	// number of bytes than the field header declared (plus the terminator).
	CodeValueLengthMismatch

	CodeLineTooLong
)

func (c ErrorCode) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeUsage:
		return "UsageError"
	case CodeTransport:
		return "TransportError"
	case CodeMalformedHeader:
		return "MalformedHeader"
	case CodeMalformedFieldHeader:
		return "MalformedFieldHeader"
	case CodeInvalidFieldLength:
		return "InvalidFieldLength"
	case CodeValueLengthMismatch:
		return "ValueLengthMismatch"
	case CodeLineTooLong:
		return "LineTooLong"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// Error is the discriminated error carried through every completion.
type Error struct {
	Code ErrorCode

	// Op names the stage that failed, e.g. "readUntil" or "decodeHeader"
	Op string

	// Msg is optional human readable detail
	Msg string

	// Err is the underlying cause, usually a transport error
	Err error
}

func (e *Error) Error() string {
	s := e.Code.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}

	if e.Msg != "" {
		s += ": " + e.Msg
	}

	if e.Err != nil {
		s += ": " + e.Err.Error()
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, which lets the sentinels below
// be used with errors.Is regardless of Op, Msg or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Code == e.Code
}

var (
	ErrUsage                = &Error{Code: CodeUsage}
	ErrTransport            = &Error{Code: CodeTransport}
	ErrMalformedHeader      = &Error{Code: CodeMalformedHeader}
	ErrMalformedFieldHeader = &Error{Code: CodeMalformedFieldHeader}
	ErrInvalidFieldLength   = &Error{Code: CodeInvalidFieldLength}
	ErrValueLengthMismatch  = &Error{Code: CodeValueLengthMismatch}
	ErrLineTooLong          = &Error{Code: CodeLineTooLong}
)

// NewError builds an *Error for the failing operation op.
func NewError(code ErrorCode, op string, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// TransportError wraps a transport failure. A nil cause means the transport
// returned without data.
func TransportError(op string, cause error) *Error {
	e := &Error{Code: CodeTransport, Op: op, Err: cause}
	if cause == nil {
		e.Msg = "transport returned no data"
	}

	return e
}

// CodeOf returns the ErrorCode carried by err. A nil error is CodeOK and an
// error that isn't an *Error is treated as a transport failure.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}

	return CodeTransport
}
