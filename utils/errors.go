package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the machine-readable error kind returned to API callers.
type ErrorKind string

const (
	KindValidation          ErrorKind = "ValidationError"
	KindCapacityExceeded    ErrorKind = "CapacityExceededError"
	KindInvalidTransition   ErrorKind = "InvalidTransitionError"
	KindVerification        ErrorKind = "VerificationError"
	KindInsufficientBalance ErrorKind = "InsufficientBalanceError"
	KindConcurrencyConflict ErrorKind = "ConcurrencyConflictError"
	KindNotFound            ErrorKind = "NotFoundError"
	KindInternal            ErrorKind = "InternalError"
)

type kinded interface {
	error
	Kind() ErrorKind
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", KindValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", KindValidation, e.Field, e.Message)
}

func (e *ValidationError) Kind() ErrorKind { return KindValidation }

func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type CapacityExceededError struct {
	OccurrenceKey string
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("%s: no capacity left on %s", KindCapacityExceeded, e.OccurrenceKey)
}

func (e *CapacityExceededError) Kind() ErrorKind { return KindCapacityExceeded }

// InvalidTransitionError names the state a booking was in and the move that
// was refused.
type InvalidTransitionError struct {
	Current   string
	Attempted string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %s", KindInvalidTransition, e.Attempted, e.Current)
}

func (e *InvalidTransitionError) Kind() ErrorKind { return KindInvalidTransition }

type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %s", KindVerification, e.Reason)
}

func (e *VerificationError) Kind() ErrorKind { return KindVerification }

type InsufficientBalanceError struct {
	TutorID   string
	Requested int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: tutor %s requested %d, available %d", KindInsufficientBalance, e.TutorID, e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Kind() ErrorKind { return KindInsufficientBalance }

type ConcurrencyConflictError struct {
	Resource string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s: lost race on %s, retry", KindConcurrencyConflict, e.Resource)
}

func (e *ConcurrencyConflictError) Kind() ErrorKind { return KindConcurrencyConflict }

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %s not found", KindNotFound, e.Resource, e.ID)
}

func (e *NotFoundError) Kind() ErrorKind { return KindNotFound }

// KindOf returns the kind of the first typed error in err's chain.
func KindOf(err error) ErrorKind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// IsKind is shorthand for KindOf(err) == kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(kind ErrorKind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindCapacityExceeded, KindInvalidTransition, KindConcurrencyConflict:
		return http.StatusConflict
	case KindVerification:
		return http.StatusUnauthorized
	case KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
