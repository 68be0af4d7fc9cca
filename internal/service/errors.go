// Package service defines the error kinds shared by the question pipeline and its transports.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExternalService is returned when an external service call fails
	// (embedding or generation backend).
	ErrExternalService = errors.New("external service error")
	// ErrVectorStore is returned when the vector store cannot be queried.
	ErrVectorStore = errors.New("vector store unavailable")
)

// ValidationError represents a validation error with a field name.
// It matches ErrInvalidInput under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}
