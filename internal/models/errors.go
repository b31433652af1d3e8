package models

import (
	"errors"
	"fmt"
)

// Error codes shared by the stores, services and the HTTP layer.
const (
	CodeSelfRequest          = "SELF_REQUEST"
	CodeInvalidTarget        = "INVALID_TARGET"
	CodeAlreadyConnected     = "ALREADY_CONNECTED"
	CodeRequestNotFound      = "REQUEST_NOT_FOUND"
	CodeFriendNotFound       = "FRIEND_NOT_FOUND"
	CodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeTransientStorage     = "TRANSIENT_STORAGE_ERROR"
	CodeInvariantViolation   = "INVARIANT_VIOLATION"
	CodeValidation           = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL_ERROR"
)

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

func NewSelfRequestError() *AppError {
	return &AppError{
		Code:    CodeSelfRequest,
		Message: "Cannot send friend request to yourself",
	}
}

func NewInvalidTargetError(userID uint) *AppError {
	return &AppError{
		Code:    CodeInvalidTarget,
		Message: fmt.Sprintf("User with ID %d does not exist", userID),
	}
}

func NewAlreadyConnectedError(status RelationshipStatus) *AppError {
	return &AppError{
		Code:    CodeAlreadyConnected,
		Message: fmt.Sprintf("Users are already connected (%s)", status),
	}
}

func NewRequestNotFoundError() *AppError {
	return &AppError{
		Code:    CodeRequestNotFound,
		Message: "Friend request not found",
	}
}

func NewFriendNotFoundError() *AppError {
	return &AppError{
		Code:    CodeFriendNotFound,
		Message: "Friendship not found",
	}
}

func NewNotificationNotFoundError(id uint) *AppError {
	return &AppError{
		Code:    CodeNotificationNotFound,
		Message: fmt.Sprintf("Notification with ID %d not found", id),
	}
}

// NewTransientError marks a storage failure that is safe to retry.
func NewTransientError(err error) *AppError {
	return &AppError{
		Code:    CodeTransientStorage,
		Message: "Storage temporarily unavailable",
		Err:     err,
	}
}

// NewInvariantViolationError reports state that can only exist because of a bug.
func NewInvariantViolationError(message string) *AppError {
	return &AppError{
		Code:    CodeInvariantViolation,
		Message: message,
	}
}

// ErrorCode returns the code of the first AppError in err's chain, or "".
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given AppError code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// IsTransient reports whether err is a retryable storage failure.
func IsTransient(err error) bool {
	return IsCode(err, CodeTransientStorage)
}
