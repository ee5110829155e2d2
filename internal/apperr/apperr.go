package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced to the user.
type Kind int

const (
	KindUnknown Kind = iota
	KindDecode
	KindProcessing
	KindConfiguration
)

// String returns a human-readable name of the error kind.
func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindProcessing:
		return "processing"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error carries the kind of failure together with the file and step it happened in.
type Error struct {
	Kind Kind
	File string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.File != "" {
		msg += fmt.Sprintf(" (%s)", e.File)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Decode reports an input that cannot be opened or decoded as an image.
func Decode(file string, err error) *Error {
	return &Error{Kind: KindDecode, File: file, Op: "decode", Err: err}
}

// Processing reports a failure of the remover or of the save step.
func Processing(file, op string, err error) *Error {
	return &Error{Kind: KindProcessing, File: file, Op: op, Err: err}
}

// Configuration reports a missing or invalid setting.
func Configuration(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether any error in err's chain is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// FileOf returns the file attached to err, if any.
func FileOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.File
	}
	return ""
}
