// Package splotval implements the typed-key and value coercion core: a
// closed sum-typed Value, section/capability metadata, typed property and
// method keys, and the modifier set used by every mutation operation.
package splotval

import (
	"errors"
	"fmt"
)

// ErrorKind names one of the closed error taxonomy entries from the
// external interface error catalog. Callers should compare against these
// constants rather than matching on message text.
type ErrorKind string

const (
	ErrPropertyNotFound          ErrorKind = "PropertyNotFound"
	ErrPropertyReadOnly          ErrorKind = "PropertyReadOnly"
	ErrPropertyWriteOnly         ErrorKind = "PropertyWriteOnly"
	ErrInvalidPropertyValue      ErrorKind = "InvalidPropertyValue"
	ErrPropertyOperationUnsupported ErrorKind = "PropertyOperationUnsupported"
	ErrBadStateForPropertyValue  ErrorKind = "BadStateForPropertyValue"
	ErrMethodNotFound            ErrorKind = "MethodNotFound"
	ErrInvalidMethodArguments    ErrorKind = "InvalidMethodArguments"
	ErrInvalidValue              ErrorKind = "InvalidValue"
	ErrInvalidModifierList       ErrorKind = "InvalidModifierList"
	ErrInvalidSection            ErrorKind = "InvalidSection"
	ErrUnknownResource           ErrorKind = "UnknownResource"
	ErrUnassociatedResource      ErrorKind = "UnassociatedResource"
	ErrUnacceptableThing         ErrorKind = "UnacceptableThing"
	ErrGroupNotAvailable         ErrorKind = "GroupNotAvailable"
	ErrGroupsNotSupported        ErrorKind = "GroupsNotSupported"
	ErrTechnologyCannotHost      ErrorKind = "TechnologyCannotHost"
	ErrTechnology                ErrorKind = "Technology"
	ErrCorruptPersistentState    ErrorKind = "CorruptPersistentState"
	ErrRPNStackUnderflow         ErrorKind = "RPNStackUnderflow"
	ErrRPNStackOverflow          ErrorKind = "RPNStackOverflow"
	ErrRPNUnknownVariable        ErrorKind = "RPNUnknownVariable"
	ErrRPNSyntaxError            ErrorKind = "RPNSyntaxError"
)

// Error is the concrete error type carried through every future-returning
// operation in the runtime. It is never swallowed.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// NewError builds an *Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, if err is (or wraps) an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
