// Package apperror classifies domain failures so transports can map them to
// status codes without knowing every sentinel.
package apperror

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindConfiguration         Kind = "configuration"
	KindInsufficientInventory Kind = "insufficient_inventory"
	KindValidation            Kind = "validation"
	KindConflict              Kind = "conflict"
	KindTransaction           Kind = "transaction"
	KindUnknown               Kind = "unknown"
)

// Error is a classified failure. Sentinels are compared by identity, so
// wrapping one with fmt.Errorf("%w") keeps errors.Is working.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Kinded is implemented by richer error types that carry their own fields,
// such as inventory shortfalls.
type Kinded interface {
	ErrorKind() Kind
}

func (e *Error) ErrorKind() Kind { return e.Kind }

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var kinded Kinded
	if errors.As(err, &kinded) {
		return kinded.ErrorKind()
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Validation builds a field-scoped validation error.
func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Configuration(code, message string) *Error {
	return New(KindConfiguration, code, message)
}

// Transaction wraps an unexpected storage failure raised inside a unit of
// work. Already classified errors pass through untouched.
func Transaction(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &Error{Kind: KindTransaction, Code: "transaction_failed", Message: "transaction failed", Err: err}
}
