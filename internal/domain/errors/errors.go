package errors

import (
	"errors"
	"fmt"
)

var (
	// Lookup errors
	ErrNotFound = errors.New("not found")

	// Settlement errors
	ErrDuplicateSettlement    = errors.New("settlement already processed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUnauthorized           = errors.New("invalid api key")

	// Gateway errors
	ErrUpstreamFailure     = errors.New("payment rejected by gateway")
	ErrUpstreamUnavailable = errors.New("payment gateway unavailable")

	// Storage errors
	ErrPersistence   = errors.New("write produced no usable result")
	ErrUnknownColumn = errors.New("column is not part of the schema")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
)

// DomainError wraps a sentinel with the message shown to API callers.
type DomainError struct {
	Code    string
	Message string
	Err     error
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

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents malformed input rejected before any I/O.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NotFoundError names the reference that did not resolve.
type NotFoundError struct {
	Kind    string
	Ref     string
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Ref)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not-found error carrying a caller-facing message.
func NewNotFoundError(kind, ref, message string) *NotFoundError {
	return &NotFoundError{Kind: kind, Ref: ref, Message: message}
}

// PublicMessage returns the message to report to API callers and whether err
// is a recognized business outcome. Unrecognized errors are faults.
func PublicMessage(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message, true
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Message, true
	}
	var de *DomainError
	if errors.As(err, &de) {
		if errors.Is(de, ErrPersistence) {
			return de.Message, false
		}
		return de.Message, true
	}
	return "", false
}
