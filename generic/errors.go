/*
errors.go - Centralized error types for the generic layer

PURPOSE:
  All errors raised below the domain layer in one place. The tontine package
  wraps these with its own typed errors carrying entity context.

ERROR CATEGORIES:
  1. Amount errors - Malformed input, checked-arithmetic failures
  2. Store errors - Missing keys, backend failures, encoding problems

USAGE:
  Domain packages translate generic errors:

    if errors.Is(err, generic.ErrNotFound) {
        return tontine.MemberNotFound(addr)
    }

SEE ALSO:
  - types.go: Amount arithmetic
  - store.go: Store contract
  - tontine/errors.go: Domain error taxonomy
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when an amount string is not a non-negative integer.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnderflow is returned when a checked subtraction would go below zero.
	ErrUnderflow = errors.New("arithmetic underflow")

	// ErrNotFound is returned by EntityStore.Load when the key is absent.
	ErrNotFound = errors.New("record not found")

	// ErrStoreFailure wraps backend failures (I/O, SQL, badger).
	ErrStoreFailure = errors.New("store failure")

	// ErrEncoding is returned when a record cannot be (de)serialized.
	ErrEncoding = errors.New("record encoding failed")

	// ErrConcurrentModification is returned when the backend detects a write conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnderflowError reports both operands of a failed checked subtraction.
type UnderflowError struct {
	Minuend    Amount
	Subtrahend Amount
}

func (e *UnderflowError) Error() string {
	return fmt.Sprintf("arithmetic underflow: %s - %s", e.Minuend, e.Subtrahend)
}

func (e *UnderflowError) Unwrap() error {
	return ErrUnderflow
}

// KeyError identifies the record a store operation failed on.
type KeyError struct {
	Namespace Namespace
	Key       string
	Err       error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Namespace, e.Key, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount)
}
