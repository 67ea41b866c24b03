// Package apperr defines the error taxonomy shared across relaynote packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrTransport marks a relay failure. The affected work stays queued.
	ErrTransport = errors.New("transport error")
	// ErrOffline aborts a sync pass before any step runs.
	ErrOffline = errors.New("network unreachable")
	// ErrNotAuthenticated aborts a sync pass when no identity is configured.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrValidation marks a malformed payload or invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrStorage marks a local persistence failure.
	ErrStorage = errors.New("storage failure")
)

// Transport wraps err as a transport failure of op.
func Transport(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// Storage wraps err as a storage failure of op.
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Validation wraps err as a validation failure of op.
func Validation(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrValidation, err)
}

// IsFatalForSync reports whether err must abort a sync pass.
func IsFatalForSync(err error) bool {
	return errors.Is(err, ErrOffline) || errors.Is(err, ErrNotAuthenticated)
}
