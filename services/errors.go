package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeUnauthenticated ErrorType = "unauthenticated"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeExternal        ErrorType = "external"
	ErrorTypeInternal        ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap returns a copy of e carrying err as its cause. Sentinels stay
// untouched, so details may be added to the copy.
func (e *DomainError) Wrap(err error) *DomainError {
	out := NewDomainError(e.Type, e.Message, err)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	return out
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinel values for errors.Is. Use Wrap to get a copy before adding
// details.
var (
	ErrNotAuthenticated   = NewDomainError(ErrorTypeUnauthenticated, "authentication required", nil)
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthenticated, "invalid credentials", nil)
	ErrSessionExpired     = NewDomainError(ErrorTypeUnauthenticated, "session expired", nil)

	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	ErrBackendUnavailable = NewDomainError(ErrorTypeExternal, "backend unavailable", nil)
	ErrBackendResponse    = NewDomainError(ErrorTypeExternal, "unexpected backend response", nil)

	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == t
}

// IsUnauthenticatedError checks if an error means no valid session exists
func IsUnauthenticatedError(err error) bool { return hasType(err, ErrorTypeUnauthenticated) }

// IsUnauthorizedError checks if an error means the role is not permitted
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsExternalError checks if an error came from the backend
func IsExternalError(err error) bool { return hasType(err, ErrorTypeExternal) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}
