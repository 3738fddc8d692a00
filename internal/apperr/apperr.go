// Package apperr defines the classifiable error taxonomy shared by services
// and handlers. Services return *Error values; handlers map codes to HTTP
// statuses. Wrapping keeps the underlying cause reachable via errors.Is/As.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class.
type Code string

const (
	CodeParameterError          Code = "PARAMETER_ERROR"
	CodeResourceNotFound        Code = "RESOURCE_NOT_FOUND"
	CodeOrderNotFound           Code = "ORDER_NOT_FOUND"
	CodeInsufficientInventory   Code = "INSUFFICIENT_INVENTORY"
	CodeInvalidStatusTransition Code = "INVALID_STATUS_TRANSITION"
	CodePaymentFailed           Code = "PAYMENT_FAILED"
	CodeRefundFailed            Code = "REFUND_FAILED"
)

// Error carries a taxonomy code alongside a human-readable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code so sentinel comparison works across wrapping:
// errors.Is(err, &Error{Code: CodeOrderNotFound}) is true for any
// order-not-found error regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New returns an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf returns an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error that preserves err as the cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the taxonomy code from err, if any.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// HTTPStatus maps a code to the status handlers respond with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeParameterError:
		return http.StatusBadRequest
	case CodeResourceNotFound, CodeOrderNotFound:
		return http.StatusNotFound
	case CodeInsufficientInventory, CodeInvalidStatusTransition,
		CodePaymentFailed, CodeRefundFailed:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
