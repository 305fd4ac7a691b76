package apx

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrorCode enumerates the failure kinds the core produces.
type ErrorCode int

const (
	NoError ErrorCode = iota

	// parsing
	ErrParse
	ErrDataSignature
	ErrPortSignature
	ErrInvalidAttribute
	ErrUnmatchedBrace
	ErrUnmatchedBracket
	ErrUnmatchedString
	ErrExpectedBracket
	ErrStrayCharactersAfterParse
	ErrEmptyRecord
	ErrInvalidTypeRef

	// resource
	ErrMem
	ErrBufferFull
	ErrBufferBoundary
	ErrTooManyPorts
	ErrTooManyNodes
	ErrTooManyReferences
	ErrNameTooLong

	// routing / files
	ErrFileAlreadyExists
	ErrFileNotFound
	ErrFileNotOpen
	ErrFileTooLarge
	ErrFileCreate
	ErrInvalidAddress
	ErrInvalidWrite
	ErrMissingBuffer

	// protocol
	ErrInvalidMsg
	ErrInvalidHeader
	ErrInvalidInstruction
	ErrUnexpectedData
	ErrUnsupported

	// values
	ErrValueType
	ErrValueRange
	ErrValueLength
	ErrNumberTooLarge
	ErrInitValue

	// concurrency
	ErrThreadCreate
	ErrThreadJoin
	ErrThreadJoinTimeout
	ErrSemaphore

	ErrInternal
	ErrNotImplemented
	ErrInvalidArgument
	ErrNotConnected
	ErrNotFound
	ErrInvalidState
)

var errorNames = map[ErrorCode]string{
	ErrParse:                     "parse error",
	ErrDataSignature:             "invalid data signature",
	ErrPortSignature:             "invalid port signature",
	ErrInvalidAttribute:          "invalid attribute",
	ErrUnmatchedBrace:            "unmatched brace",
	ErrUnmatchedBracket:          "unmatched bracket",
	ErrUnmatchedString:           "unmatched string",
	ErrExpectedBracket:           "expected bracket",
	ErrStrayCharactersAfterParse: "stray characters after parse",
	ErrEmptyRecord:               "empty record",
	ErrInvalidTypeRef:            "invalid type reference",
	ErrMem:                       "out of memory",
	ErrBufferFull:                "buffer full",
	ErrBufferBoundary:            "buffer boundary violation",
	ErrTooManyPorts:              "too many ports",
	ErrTooManyNodes:              "too many nodes",
	ErrTooManyReferences:         "too many references",
	ErrNameTooLong:               "name too long",
	ErrFileAlreadyExists:         "file already exists",
	ErrFileNotFound:              "file not found",
	ErrFileNotOpen:               "file not open",
	ErrFileTooLarge:              "file too large",
	ErrFileCreate:                "file create failed",
	ErrInvalidAddress:            "invalid address",
	ErrInvalidWrite:              "invalid write",
	ErrMissingBuffer:             "missing buffer",
	ErrInvalidMsg:                "invalid message",
	ErrInvalidHeader:             "invalid header",
	ErrInvalidInstruction:        "invalid instruction",
	ErrUnexpectedData:            "unexpected data",
	ErrUnsupported:               "unsupported",
	ErrValueType:                 "value type mismatch",
	ErrValueRange:                "value out of range",
	ErrValueLength:               "value length mismatch",
	ErrNumberTooLarge:            "number too large",
	ErrInitValue:                 "invalid init value",
	ErrThreadCreate:              "thread create failed",
	ErrThreadJoin:                "thread join failed",
	ErrThreadJoinTimeout:         "thread join timeout",
	ErrSemaphore:                 "semaphore error",
	ErrInternal:                  "internal error",
	ErrNotImplemented:            "not implemented",
	ErrInvalidArgument:           "invalid argument",
	ErrNotConnected:              "not connected",
	ErrNotFound:                  "not found",
	ErrInvalidState:              "invalid state",
}

func (c ErrorCode) String() string {
	if s, ok := errorNames[c]; ok {
		return s
	}
	return "error " + strconv.Itoa(int(c))
}

// Error carries an error code plus the byte position at which a parser
// failed (-1 when not applicable) and an optional detail string.
type Error struct {
	Code     ErrorCode
	Position int
	Detail   string
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Position >= 0:
		return fmt.Sprintf("%v at offset %d: %s", e.Code, e.Position, e.Detail)
	case e.Detail != "":
		return fmt.Sprintf("%v: %s", e.Code, e.Detail)
	case e.Position >= 0:
		return fmt.Sprintf("%v at offset %d", e.Code, e.Position)
	}
	return e.Code.String()
}

// NewError returns an Error with no position information.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code, Position: -1}
}

// NewErrorAt returns an Error annotated with the byte offset of the failure.
func NewErrorAt(code ErrorCode, pos int) *Error {
	return &Error{Code: code, Position: pos}
}

// Errorf returns an Error with a formatted detail string.
func Errorf(code ErrorCode, format string, arg ...interface{}) *Error {
	return &Error{Code: code, Position: -1, Detail: fmt.Sprintf(format, arg...)}
}

// CodeOf extracts the error code from err, or ErrInternal if err is not an
// *Error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return NoError
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal
}

// IsCode reports whether err is an *Error carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
