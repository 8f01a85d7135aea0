package bounded

import (
	"errors"
	"fmt"
)

// Error is the failure of a bounded store operation.
//
// Every Error is terminal for the operation that produced it: the store is
// left exactly as it was before the call.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Store names the store layout the operation ran against.
	Store string

	// Details contains additional context (field names, limits, keys).
	Details map[string]string
}

// Code categorizes bounded store errors.
type Code string

const (
	// CodeCapacityExceeded indicates an insert into a store already holding
	// CAPACITY records.
	CodeCapacityExceeded Code = "CAPACITY_EXCEEDED"

	// CodeNotFound indicates a lookup for an identifier or key that is not
	// stored.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidValue indicates an argument outside its allowed domain.
	CodeInvalidValue Code = "INVALID_VALUE"

	// CodeFieldTooLarge indicates a string longer than its declared width.
	CodeFieldTooLarge Code = "FIELD_TOO_LARGE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Store != "" {
		return fmt.Sprintf("%s: %s (store=%s)", e.Code, e.Message, e.Store)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewCapacityExceeded creates an Error for a full store.
func NewCapacityExceeded(store string, capacity int) *Error {
	return &Error{
		Code:    CodeCapacityExceeded,
		Message: fmt.Sprintf("store holds %d records", capacity),
		Store:   store,
		Details: map[string]string{"capacity": fmt.Sprintf("%d", capacity)},
	}
}

// NewNotFound creates an Error for a missing identifier or key.
func NewNotFound(store, key string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("no record for %q", key),
		Store:   store,
		Details: map[string]string{"key": key},
	}
}

// NewInvalidValue creates an Error for an out-of-domain argument.
func NewInvalidValue(field, message string) *Error {
	return &Error{
		Code:    CodeInvalidValue,
		Message: fmt.Sprintf("%s: %s", field, message),
		Details: map[string]string{"field": field},
	}
}

// NewFieldTooLarge creates an Error for an oversize string field.
func NewFieldTooLarge(store, field string, size, max int) *Error {
	return &Error{
		Code:    CodeFieldTooLarge,
		Message: fmt.Sprintf("%s is %d bytes, maximum %d", field, size, max),
		Store:   store,
		Details: map[string]string{
			"field": field,
			"size":  fmt.Sprintf("%d", size),
			"max":   fmt.Sprintf("%d", max),
		},
	}
}

// CodeOf returns the Code of err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCapacityExceeded returns true if err is a CAPACITY_EXCEEDED error.
func IsCapacityExceeded(err error) bool { return CodeOf(err) == CodeCapacityExceeded }

// IsNotFound returns true if err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsInvalidValue returns true if err is an INVALID_VALUE error.
func IsInvalidValue(err error) bool { return CodeOf(err) == CodeInvalidValue }

// IsFieldTooLarge returns true if err is a FIELD_TOO_LARGE error.
func IsFieldTooLarge(err error) bool { return CodeOf(err) == CodeFieldTooLarge }
