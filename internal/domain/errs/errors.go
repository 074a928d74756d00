// Package errs holds the sentinel errors shared by every layer of the service.
package errs

import "errors"

var (
	// ErrNotFound is returned when a record, or every referenced relation id, is missing
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned when a record with the same key already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput is returned for malformed pagination or constraint-violating field values
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized is returned when access is not authorized
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when an action is forbidden
	ErrForbidden = errors.New("forbidden")

	// ErrConcurrentModification is returned when a version conflict occurs and the record still exists
	ErrConcurrentModification = errors.New("concurrent modification detected")
)
