package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrNoScore            = errors.New("no score found")
	ErrMissingToken       = errors.New("no token provided")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("too many requests")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnavailable        = errors.New("service unavailable")
)

// ValidationError carries field-level detail for malformed input
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Details, "; "))
}

// NewValidationError builds a ValidationError from detail messages
func NewValidationError(details ...string) *ValidationError {
	return &ValidationError{Details: details}
}

// AsValidationError extracts a ValidationError from an error chain
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
