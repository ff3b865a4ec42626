package authkit

import (
	"errors"
	"fmt"
	"net/http"
)

// Error categories. Every error returned by a flow wraps exactly one of them.
var (
	ErrValidation   = errors.New("validation")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not_found")
	ErrUpstream     = errors.New("upstream")
	ErrInternal     = errors.New("internal")
	ErrConfig       = errors.New("config")
)

// Public messages shared by several flows.
const (
	messageInvalidCredentials = "Invalid credentials"
	messageInvalidToken       = "Invalid or expired token"
	messageInvalidState       = "Invalid or expired state"
	messageUpstreamFailure    = "Upstream service failure"
	messageInternalFailure    = "Internal server error"
	messageNotConfigured      = "Service not configured"
)

// FlowError carries a category, a dotted diagnostic code, and the message safe to show callers.
type FlowError struct {
	Category error
	Code     string
	Message  string
	Cause    error
}

func (flowError *FlowError) Error() string {
	if flowError.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", flowError.Code, flowError.Message, flowError.Cause)
	}
	return fmt.Sprintf("%s: %s", flowError.Code, flowError.Message)
}

func (flowError *FlowError) Unwrap() []error {
	if flowError.Cause == nil {
		return []error{flowError.Category}
	}
	return []error{flowError.Category, flowError.Cause}
}

func newFlowError(category error, code string, message string, cause error) *FlowError {
	return &FlowError{Category: category, Code: code, Message: message, Cause: cause}
}

func validationError(code string, message string) error {
	return newFlowError(ErrValidation, code, message, nil)
}

func unauthorizedError(code string, message string, cause error) error {
	return newFlowError(ErrUnauthorized, code, message, cause)
}

func upstreamError(code string, cause error) error {
	return newFlowError(ErrUpstream, code, messageUpstreamFailure, cause)
}

func internalError(code string, cause error) error {
	return newFlowError(ErrInternal, code, messageInternalFailure, cause)
}

// PublicMessage returns the caller-facing message for err.
func PublicMessage(err error) string {
	var flowError *FlowError
	if errors.As(err, &flowError) && flowError.Message != "" {
		return flowError.Message
	}
	return messageInternalFailure
}

// StatusCode maps an error category onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, ErrConfig):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the diagnostic code of err, or "internal" when it carries none.
func ErrorCode(err error) string {
	var flowError *FlowError
	if errors.As(err, &flowError) {
		return flowError.Code
	}
	return "internal"
}
