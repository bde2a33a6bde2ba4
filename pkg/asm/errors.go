package asm

import "fmt"

// Error reports a listing that cannot be assembled.
type Error struct {
	Line    int // 1-indexed, 0 when not tied to a line
	Column  int // 1-indexed, 0 when not tied to a column
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("asm error at line %d, column %d: %s", e.Line, e.Column, msg)
	case e.Line > 0:
		return fmt.Sprintf("asm error at line %d: %s", e.Line, msg)
	default:
		return "asm error: " + msg
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func errorf(line int, tok token, format string, args ...any) *Error {
	return &Error{Line: line, Column: tok.column, Message: fmt.Sprintf(format, args...)}
}
