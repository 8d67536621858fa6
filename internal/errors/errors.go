// Package errors defines the domain error taxonomy shared by the finance
// services and the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindConflict          Kind = "conflict"
	KindExternalService   Kind = "external_service"
	KindIntegrity         Kind = "integrity"
	KindInternal          Kind = "internal"
)

type DomainError struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on Code so copies made by Wrap and WithMessage still compare
// equal to the catalogue entry.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *DomainError) Wrap(err error) *DomainError {
	cp := *e
	cp.Err = err
	return &cp
}

func (e *DomainError) WithMessage(format string, args ...interface{}) *DomainError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func newError(kind Kind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

// KindOf classifies err. Anything outside the catalogue is internal.
func KindOf(err error) Kind {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As is re-exported so callers importing this package under its own name do
// not also need the standard library one.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

var (
	ErrValidation = newError(KindValidation, "VALIDATION_FAILED", "validation failed")
	ErrNotFound   = newError(KindNotFound, "NOT_FOUND", "resource not found")
	ErrConflict   = newError(KindConflict, "CONFLICT", "state changed concurrently")
	ErrInternal   = newError(KindInternal, "INTERNAL", "internal error")
)
