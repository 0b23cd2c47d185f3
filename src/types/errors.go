package types

import (
	"errors"
	"fmt"
	"net/http"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// ConflictError reports a status compare-and-set that lost, or a duplicate record.
type ConflictError struct {
	ID       string
	Expected PassStatus
	Actual   PassStatus
	Message  string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("pass %s is %s, expected %s", e.ID, e.Actual, e.Expected)
}

type AuthorizationError struct {
	Action string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

// InfrastructureError wraps store and transport failures. Callers may retry idempotent operations.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

var ErrUnauthenticated = errors.New("unauthenticated")
var ErrThrottled = errors.New("too many failed verifications, try again later")

func IsRetryable(err error) bool {
	var infra *InfrastructureError
	return errors.As(err, &infra)
}

// ErrorStatus maps an error returned by the services to its HTTP status code.
func ErrorStatus(err error) int {
	var validation *ValidationError
	var notFound *NotFoundError
	var conflict *ConflictError
	var authz *AuthorizationError
	var infra *InfrastructureError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &authz):
		return http.StatusForbidden
	case errors.As(err, &infra):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrThrottled):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
