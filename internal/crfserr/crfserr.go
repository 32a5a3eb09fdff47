// Package crfserr provides the structured error codes used across the
// engine, mirroring the numeric-code-plus-message error design of the
// original implementation.
package crfserr

import "fmt"

// Code identifies a class of failure. Zero means success.
type Code uint32

const (
	CodeOK            Code = 0
	CodeError         Code = 1
	CodeCollision     Code = 2
	CodeNoUser        Code = 3
	CodeNoFS          Code = 4
	CodeWaiting       Code = 5
	CodeNotFound      Code = 6
	CodeNotImpl       Code = 7
	CodeMalformed     Code = 8
	CodeAuthErr       Code = 9
	CodeJSONErr       Code = 0x00010001
	CodeNetErr        Code = 0x00010002
	CodeIOErr         Code = 0x00010003
	CodeInvalidData   Code = 0x00010004
	CodeUnapplicable  Code = 0x00010005
	CodePreconditions Code = 0x00010006
)

// Error is a structured error carrying a numeric code and a message.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%#x] %s", uint32(e.Code), e.Msg)
}

// New builds an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// FromIO wraps a stdlib I/O error with CodeIOErr.
func FromIO(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodeIOErr, Msg: err.Error()}
}

// FromJSON wraps a serialization error with CodeJSONErr.
func FromJSON(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodeJSONErr, Msg: err.Error()}
}
