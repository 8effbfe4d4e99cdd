package service

import (
	"errors"
	"strings"

	"github.com/recipememo-api/internal/validation"
)

// Sentinel errors mapped to HTTP status codes by the api package
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

// InputError carries field-level validation failures; it matches ErrInvalidInput
type InputError struct {
	Errors []validation.ValidationError
}

func (e *InputError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrInvalidInput) hold
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field, message string, value interface{}) *InputError {
	return &InputError{Errors: []validation.ValidationError{{Field: field, Message: message, Value: value}}}
}
