package service

import (
	"errors"
	"fmt"
)

// Kind classifies why a prediction failed.
type Kind int

const (
	KindInternal Kind = iota
	KindMissingInput
	KindInvalidInput
	KindDecode
	KindInference
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindMissingInput:
		return "missing_input"
	case KindInvalidInput:
		return "invalid_input"
	case KindDecode:
		return "decode"
	case KindInference:
		return "inference"
	case KindUnavailable:
		return "unavailable"
	}
	return "internal"
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

var ErrMissingInput = &Error{Kind: KindMissingInput, Err: errors.New("no image uploaded")}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
