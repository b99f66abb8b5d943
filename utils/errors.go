package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceError represents a service-level error with context
type ServiceError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
	Details    string `json:"details,omitempty"`
	Cause      error  `json:"-"` // Original error, not exposed in JSON
}

func (e ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(code, message string) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewServiceErrorWithStatus creates a service error with specific HTTP status
func NewServiceErrorWithStatus(code, message string, statusCode int) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewServiceErrorWithCause creates a service error that wraps another error
func NewServiceErrorWithCause(code, message string, cause error) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusInternalServerError,
	}
}

// GetServiceError extracts a ServiceError from an error chain
func GetServiceError(err error) (ServiceError, bool) {
	var serviceErr ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr, true
	}
	return ServiceError{}, false
}

// Common service error constructors
func NewUnauthorizedError(message string) error {
	return ServiceError{
		Code:       ErrCodeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string) error {
	return ServiceError{
		Code:       ErrCodeAuthorization,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewNotFoundError(resource string) error {
	return ServiceError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func NewBadRequestError(message string) error {
	return ServiceError{
		Code:       ErrCodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewConflictError(message string) error {
	return ServiceError{
		Code:       ErrCodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewDatabaseError(operation string, cause error) error {
	return ServiceError{
		Code:       ErrCodeDatabase,
		Message:    fmt.Sprintf("Database operation failed: %s", operation),
		Cause:      cause,
		StatusCode: http.StatusInternalServerError,
	}
}

// Help workflow errors

// CooldownError is returned when help is requested before the cooldown elapsed.
type CooldownError struct {
	Remaining float64 // hours
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("help cooldown active, %.1f minutes remaining", e.Remaining*60)
}

// Is lets errors.Is(err, ErrCooldownActive) match any CooldownError.
func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}

func NewKitNotFoundError() error {
	return NewNotFoundError("Kit")
}

func NewUserNotFoundError() error {
	return NewNotFoundError("User")
}

func NewInvalidCredentialsError() error {
	return NewUnauthorizedError("Invalid credentials")
}

// Error code constants
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeAuthentication     = "AUTHENTICATION_ERROR"
	ErrCodeAuthorization      = "AUTHORIZATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeRateLimit          = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeDatabase           = "DATABASE_ERROR"
	ErrCodeNetworkUnavailable = "NETWORK_UNAVAILABLE"
	ErrCodeCooldownActive     = "COOLDOWN_ACTIVE"
	ErrCodeLocation           = "LOCATION_UNAVAILABLE"
	ErrCodeDispatch           = "DISPATCH_FAILURE"
	ErrCodeDispatchInProgress = "DISPATCH_IN_PROGRESS"
	ErrCodeNotCounting        = "NO_ACTIVE_COUNTDOWN"
)

// Sentinel errors for the help workflow and its collaborators
var (
	ErrNetworkUnavailable  = errors.New("network unavailable")
	ErrCooldownActive      = errors.New("help cooldown active")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrDispatchFailure     = errors.New("dispatch failed")
	ErrDispatchInProgress  = errors.New("dispatch in progress")
	ErrNotCounting         = errors.New("no active countdown")
)

// ToServiceError maps domain sentinels onto HTTP-aware service errors.
func ToServiceError(err error) ServiceError {
	if serviceErr, ok := GetServiceError(err); ok {
		return serviceErr
	}

	var cooldownErr *CooldownError
	switch {
	case errors.As(err, &cooldownErr):
		return ServiceError{
			Code:       ErrCodeCooldownActive,
			Message:    CooldownMessage(cooldownErr.Remaining),
			StatusCode: http.StatusTooManyRequests,
			Cause:      err,
		}
	case errors.Is(err, ErrNetworkUnavailable):
		return ServiceError{
			Code:       ErrCodeNetworkUnavailable,
			Message:    NotifyAngelErrorMessage,
			StatusCode: http.StatusServiceUnavailable,
			Cause:      err,
		}
	case errors.Is(err, ErrLocationUnavailable):
		return ServiceError{
			Code:       ErrCodeLocation,
			Message:    "Location is unavailable",
			StatusCode: http.StatusNotFound,
			Cause:      err,
		}
	case errors.Is(err, ErrDispatchInProgress):
		return ServiceError{
			Code:       ErrCodeDispatchInProgress,
			Message:    "Angels are already being notified",
			StatusCode: http.StatusConflict,
			Cause:      err,
		}
	case errors.Is(err, ErrNotCounting):
		return ServiceError{
			Code:       ErrCodeNotCounting,
			Message:    "There is no help request waiting to be sent",
			StatusCode: http.StatusConflict,
			Cause:      err,
		}
	case errors.Is(err, ErrDispatchFailure):
		return ServiceError{
			Code:       ErrCodeDispatch,
			Message:    "Failed to notify angels",
			StatusCode: http.StatusBadGateway,
			Cause:      err,
		}
	}

	return ServiceError{
		Code:       ErrCodeInternal,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
		Cause:      err,
	}
}
