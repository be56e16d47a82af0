// Package shared contains common domain types, errors and events that are
// used across the domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "graph", "review"
	Op      string // Operation that failed, e.g., "Follow", "CreateReview"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Graph domain errors
var (
	ErrAccountNotFound     = NewDomainError("graph", "FindAccount", ErrNotFound, "account not found")
	ErrProfileNotFound     = NewDomainError("graph", "FindProfile", ErrNotFound, "profile not found")
	ErrUsernameTaken       = NewDomainError("graph", "CreateAccount", ErrAlreadyExists, "username already taken")
	ErrSlugTaken           = NewDomainError("graph", "CreateProfile", ErrAlreadyExists, "slug already taken")
	ErrInvalidTargetType   = NewDomainError("graph", "Validate", ErrInvalidInput, "unknown target type")
	ErrInvalidProfileType  = NewDomainError("graph", "Validate", ErrInvalidInput, "unknown profile entity type")
	ErrSelfFollow          = NewDomainError("graph", "Follow", ErrInvalidInput, "cannot follow self")
	ErrSelfLike            = NewDomainError("graph", "Like", ErrInvalidInput, "cannot like self")
	ErrCounterNotSupported = NewDomainError("graph", "AdjustCounter", ErrInvalidInput, "counter not carried by this entity family")
	ErrInvalidPagination   = NewDomainError("graph", "List", ErrValueOutOfRange, "limit and offset must not be negative")
)

// Review domain errors
var (
	ErrReviewNotFound          = NewDomainError("review", "Find", ErrNotFound, "review not found")
	ErrInvalidRating           = NewDomainError("review", "Validate", ErrValueOutOfRange, "rating must be between 1 and 5")
	ErrCommentTooLong          = NewDomainError("review", "Validate", ErrValueOutOfRange, "comment is too long")
	ErrReviewTargetNotAProfile = NewDomainError("review", "Validate", ErrInvalidInput, "reviews can only target profiles")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
