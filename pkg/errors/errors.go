package errors

import "fmt"

// Error types for the push relay
var (
	ErrValidation = &ServiceError{
		Code:    "VALIDATION_ERROR",
		Message: "Invalid request payload",
		Status:  400,
	}

	ErrInvalidCredentials = &ServiceError{
		Code:    "INVALID_CREDENTIALS",
		Message: "Invalid API key",
		Status:  401,
	}

	ErrAccessDenied = &ServiceError{
		Code:    "ACCESS_DENIED",
		Message: "Resource belongs to a different application",
		Status:  403,
	}

	ErrNotFound = &ServiceError{
		Code:    "NOT_FOUND",
		Message: "Resource not found",
		Status:  404,
	}

	ErrRateLimitExceeded = &ServiceError{
		Code:    "RATE_LIMIT_EXCEEDED",
		Message: "Rate limit exceeded",
		Status:  429,
	}

	ErrInternalServer = &ServiceError{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "Internal server error",
		Status:  500,
	}
)

// ServiceError represents a service-level error
type ServiceError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ServiceErrors by code regardless of wrapping.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Code == e.Code
}

// Wrap wraps an error with a ServiceError
func Wrap(err error, serviceErr *ServiceError) *ServiceError {
	return &ServiceError{
		Code:    serviceErr.Code,
		Message: serviceErr.Message,
		Status:  serviceErr.Status,
		Err:     err,
	}
}

// WithMessage returns a copy of serviceErr carrying a more specific message.
func WithMessage(serviceErr *ServiceError, message string) *ServiceError {
	return &ServiceError{
		Code:    serviceErr.Code,
		Message: message,
		Status:  serviceErr.Status,
	}
}
