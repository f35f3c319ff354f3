package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Standard error codes
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeUnprocessable      = "UNPROCESSABLE"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
)

// Shop engine error codes
const (
	CodeItemNotFound      = "ITEM_NOT_FOUND"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeBasketsLocked     = "BASKETS_LOCKED"
	CodeCannotMerge       = "CANNOT_MERGE"
	CodeNotMerged         = "NOT_MERGED"
	CodeShopNotConfigured = "SHOP_NOT_CONFIGURED"
	CodePersistenceError  = "PERSISTENCE_ERROR"
	CodeItemNotInBasket   = "ITEM_NOT_IN_BASKET"

	CodeCheckoutInProgress     = "CHECKOUT_IN_PROGRESS"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// AppError represents an application error with HTTP status and error code
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap wraps an existing error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewAppError creates a new AppError
func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrValidationWithFields creates a validation error with field details
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	return ErrValidation(message).WithDetails(fields)
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return NewAppError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// ErrNotFoundWithID creates a not found error with ID
func ErrNotFoundWithID(resource, id string) *AppError {
	return ErrNotFound(resource).WithDetail("id", id)
}

// ErrConflict creates a conflict error
func ErrConflict(message string) *AppError {
	return NewAppError(CodeConflict, message, http.StatusConflict)
}

// ErrInternal creates an internal error
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError)
}

// ErrBadRequest creates a bad request error
func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

// ErrTimeout creates a timeout error
func ErrTimeout(operation string) *AppError {
	return NewAppError(CodeTimeout, fmt.Sprintf("%s timed out", operation), http.StatusGatewayTimeout)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type domainMapping struct {
	target     error
	code       string
	httpStatus int
}

var (
	mappingsMu sync.RWMutex
	mappings   []domainMapping
)

// RegisterDomainError maps a domain sentinel to an API error code and status.
// Errors matching target through errors.Is are translated by MapDomainError.
func RegisterDomainError(target error, code string, httpStatus int) {
	mappingsMu.Lock()
	defer mappingsMu.Unlock()

	for i, m := range mappings {
		if m.target == target {
			mappings[i] = domainMapping{target: target, code: code, httpStatus: httpStatus}
			return
		}
	}
	mappings = append(mappings, domainMapping{target: target, code: code, httpStatus: httpStatus})
}

// MapDomainError maps a domain error to an AppError.
// Registered sentinels win; otherwise the message is matched against common patterns.
func MapDomainError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	mappingsMu.RLock()
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			mappingsMu.RUnlock()
			return NewAppError(m.code, err.Error(), m.httpStatus).Wrap(err)
		}
	}
	mappingsMu.RUnlock()

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"):
		return ErrNotFound("resource").Wrap(err)
	case strings.Contains(msg, "already exists"):
		return ErrConflict(err.Error()).Wrap(err)
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "required"):
		return ErrValidation(err.Error()).Wrap(err)
	case strings.Contains(msg, "timeout"):
		return ErrTimeout("operation").Wrap(err)
	default:
		return ErrInternal("").Wrap(err)
	}
}
