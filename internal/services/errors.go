package services

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCatalog is returned when there is nothing active to recommend.
	// Stored recommendations are left untouched.
	ErrEmptyCatalog = errors.New("no active catalog items")
	// ErrRefreshInProgress is returned when another refresh holds the owner lock.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	// ErrInvalidInput is returned for requests the service cannot act on.
	ErrInvalidInput = errors.New("invalid input")
)

// RefreshPartialFailureError reports that old recommendations were deleted but
// the new ones could not be written. The owner currently has no stored
// recommendations; retrying the refresh is safe.
type RefreshPartialFailureError struct {
	OwnerID string
	Err     error
}

func (e *RefreshPartialFailureError) Error() string {
	return fmt.Sprintf("refresh for owner %s partially failed: %v", e.OwnerID, e.Err)
}

func (e *RefreshPartialFailureError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
