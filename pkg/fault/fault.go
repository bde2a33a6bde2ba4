// Package fault defines the error taxonomy of the script runtime.
// Every runtime package (value, codec, dispatch, vm) reports failures as
// *Error values so the host can tell the failing instruction position and
// the error kind apart without parsing messages.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a runtime error.
type Kind string

const (
	// Decode-time structural errors.
	MalformedStream Kind = "MALFORMED_STREAM"

	// Tag/operation incompatibility.
	TypeMismatch  Kind = "TYPE_MISMATCH"
	ArityMismatch Kind = "ARITY_MISMATCH"

	// Registry errors.
	UnknownFunction Kind = "UNKNOWN_FUNCTION"
	UnknownVariable Kind = "UNKNOWN_VARIABLE"
	DuplicateIndex  Kind = "DUPLICATE_INDEX"
	RegistryClosed  Kind = "REGISTRY_CLOSED"

	// Variable access errors.
	InvalidInstance  Kind = "INVALID_INSTANCE"
	ReadOnlyVariable Kind = "READ_ONLY_VARIABLE"

	// Evaluation errors.
	StackUnderflow Kind = "STACK_UNDERFLOW"
	StackOverflow  Kind = "STACK_OVERFLOW"
	DivisionByZero Kind = "DIVISION_BY_ZERO"

	// Errors returned by host callbacks that are not runtime errors themselves.
	HostFailure Kind = "HOST_FAILURE"
)

// NoPos marks an error that is not tied to an instruction position.
const NoPos = -1

// Error is a runtime error with its kind and, when known, the position of
// the instruction that raised it.
type Error struct {
	Kind    Kind
	Message string
	Pos     int   // Instruction position, NoPos if unknown
	Err     error // Wrapped cause (host callback errors)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Pos >= 0 {
		return fmt.Sprintf("[%s] %s at %04d", e.Kind, msg, e.Pos)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. This lets
// callers write errors.Is(err, fault.ErrTypeMismatch).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsFatalAtSetup reports whether the error must abort initialization.
func (e *Error) IsFatalAtSetup() bool {
	switch e.Kind {
	case DuplicateIndex, RegistryClosed:
		return true
	default:
		return false
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrMalformedStream  = &Error{Kind: MalformedStream, Pos: NoPos}
	ErrTypeMismatch     = &Error{Kind: TypeMismatch, Pos: NoPos}
	ErrArityMismatch    = &Error{Kind: ArityMismatch, Pos: NoPos}
	ErrUnknownFunction  = &Error{Kind: UnknownFunction, Pos: NoPos}
	ErrUnknownVariable  = &Error{Kind: UnknownVariable, Pos: NoPos}
	ErrDuplicateIndex   = &Error{Kind: DuplicateIndex, Pos: NoPos}
	ErrRegistryClosed   = &Error{Kind: RegistryClosed, Pos: NoPos}
	ErrInvalidInstance  = &Error{Kind: InvalidInstance, Pos: NoPos}
	ErrReadOnlyVariable = &Error{Kind: ReadOnlyVariable, Pos: NoPos}
	ErrStackUnderflow   = &Error{Kind: StackUnderflow, Pos: NoPos}
	ErrStackOverflow    = &Error{Kind: StackOverflow, Pos: NoPos}
	ErrDivisionByZero   = &Error{Kind: DivisionByZero, Pos: NoPos}
	ErrHostFailure      = &Error{Kind: HostFailure, Pos: NoPos}
)

// New creates an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Pos:     NoPos,
	}
}

// Wrap wraps a host error. Errors that already carry a kind keep it.
func Wrap(err error, format string, args ...any) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{
		Kind:    HostFailure,
		Message: fmt.Sprintf(format, args...),
		Pos:     NoPos,
		Err:     err,
	}
}

// At returns err as an *Error positioned at pos. A copy is made so errors
// shared between instances are never mutated.
func At(err error, pos int) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if !errors.As(err, &fe) {
		fe = &Error{Kind: HostFailure, Err: err}
	}
	cp := *fe
	cp.Pos = pos
	return &cp
}

// KindOf returns the kind of err, or "" if err is not a runtime error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err is a runtime error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
