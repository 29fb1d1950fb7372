package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrExternalService is returned when an external service call fails.
	ErrExternalService = errors.New("external service error")

	// ErrMalformedRecord marks a source record that is missing required fields or cannot be decoded.
	// The record is skipped and the batch continues.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrEmbeddingService marks a failure of the embedding service after retries were exhausted.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrStoreUnavailable marks a relational or vector store that could not be reached or failed a write.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidFilter marks a rejected retrieval request (unknown section, bad k, empty query).
	// It is always returned before any network call.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrTimeout marks a retrieval that exceeded its deadline.
	ErrTimeout = errors.New("request timed out")
)

// ValidationError represents a validation error with a field name.
// Err optionally carries the error kind (ErrInvalidFilter, ErrMalformedRecord, ...).
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Unwrap returns the error kind so callers can use errors.Is.
func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidInput
	}
	return e.Err
}

// InvalidFilter builds a ValidationError of kind ErrInvalidFilter.
func InvalidFilter(field, message string) error {
	return &ValidationError{Field: field, Message: message, Err: ErrInvalidFilter}
}

// MalformedRecord builds a ValidationError of kind ErrMalformedRecord.
func MalformedRecord(field, message string) error {
	return &ValidationError{Field: field, Message: message, Err: ErrMalformedRecord}
}

// Kind wraps err so that errors.Is(result, kind) holds while keeping err in the chain.
func Kind(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
