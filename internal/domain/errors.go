package domain

import (
	"context"
	"errors"
	"fmt"
)

// Validation errors: rejected before any state is touched.
var (
	ErrInvalidWallet   = errors.New("valid wallet address required")
	ErrClaimIDRequired = errors.New("claim id required")
	ErrInvalidTxRef    = errors.New("valid transaction hash required")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidActivity = errors.New("invalid activity")
)

// State conflicts.
var (
	// ErrClaimNotFound covers both unknown claims and claims owned by someone else.
	ErrClaimNotFound = errors.New("claim not found")
	// ErrClaimNotPending is returned when an operation requires a PENDING claim.
	ErrClaimNotPending = errors.New("claim is not pending")
	// ErrActivityLocked is returned when a selected activity was locked by another claim mid-transaction.
	ErrActivityLocked = errors.New("activity already locked by another claim")
	// ErrPendingClaimExists is reported by stores when the one-pending-claim constraint fires.
	ErrPendingClaimExists = errors.New("pending claim already exists for day")
	// ErrDuplicateActivity is reported by stores on a repeated provider activity id.
	ErrDuplicateActivity = errors.New("activity already ingested")
	// ErrNotConfigured is returned when on-chain authorization is disabled.
	ErrNotConfigured = errors.New("claim signing is not configured")
)

// DependencyError marks a failure of persistence, the chain or the signer.
// Callers may retry: the failed step left no partial state behind.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// Retryable reports whether retrying the request may succeed.
func (e *DependencyError) Retryable() bool { return true }

// IsRetryable reports whether err is (or wraps) a DependencyError or a timeout.
func IsRetryable(err error) bool {
	var dep *DependencyError
	if errors.As(err, &dep) {
		return dep.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

var domainErrors = []error{
	ErrInvalidWallet, ErrClaimIDRequired, ErrInvalidTxRef, ErrUserNotFound, ErrInvalidActivity,
	ErrClaimNotFound, ErrClaimNotPending, ErrActivityLocked, ErrPendingClaimExists,
	ErrDuplicateActivity, ErrNotConfigured,
}

// Dependency wraps anything that is not already a domain error so callers
// can report it as retryable.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	var dep *DependencyError
	if errors.As(err, &dep) {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}
