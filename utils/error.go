package utils

import (
	"errors"
	"strings"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError reports structurally invalid input. Nothing is committed
// when one is returned.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// ConflictError reports a domain-rule violation against existing state
// (active phase exists, precedence order violated, duplicate key).
// Conflicting carries the specific entities blocking the mutation so the
// caller can correct and retry.
type ConflictError struct {
	Message     string
	Conflicting []string
}

func (e *ConflictError) Error() string {
	if len(e.Conflicting) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Conflicting, ", ")
}

func NewConflictError(message string, conflicting ...string) *ConflictError {
	return &ConflictError{Message: message, Conflicting: conflicting}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
