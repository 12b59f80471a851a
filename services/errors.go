package services

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to the API layer.
var (
	// ErrForbidden: authorization failure. Never retried automatically.
	ErrForbidden = errors.New("forbidden")

	// Idempotency signals; callers treat these as success-equivalent.
	ErrAlreadyEnrolled = errors.New("already enrolled")
	ErrAlreadyDecided  = errors.New("proof already decided")
	ErrDuplicateGrant  = errors.New("points already granted for this key")

	// Client input errors, surfaced verbatim.
	ErrNotEnrolled       = errors.New("not enrolled")
	ErrChallengeInactive = errors.New("challenge is not active")
	ErrInvalidArtifact   = errors.New("invalid artifact")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrStorage: transient store failure. Safe to retry; a failed
	// transaction leaves no partial side effects behind.
	ErrStorage = errors.New("storage error")
)

// StorageError wraps a driver error from the relational store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// storageErr leaves already-classified errors alone so that sentinel kinds
// returned from inside a transaction survive the rollback path.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	for _, kind := range []error{
		ErrForbidden, ErrAlreadyEnrolled, ErrAlreadyDecided, ErrDuplicateGrant,
		ErrNotEnrolled, ErrChallengeInactive, ErrInvalidArtifact, ErrNotFound,
		ErrValidation, ErrIllegalTransition, ErrStorage,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the operation may simply be repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsSuccessEquivalent reports idempotency signals that mean "the effect you
// asked for is already in place".
func IsSuccessEquivalent(err error) bool {
	return errors.Is(err, ErrAlreadyEnrolled) || errors.Is(err, ErrAlreadyDecided) || errors.Is(err, ErrDuplicateGrant)
}

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
