package syncer

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure for the caller.
type Kind string

const (
	// KindValidation: malformed batch, nothing was written. Not retryable.
	KindValidation Kind = "validation"
	// KindConflict: another sync holds the account lock. Retryable.
	KindConflict Kind = "conflict"
	// KindStorage: the database failed mid-transaction, everything rolled
	// back. Retryable because the sync is a full replace.
	KindStorage Kind = "storage"
	// KindConsistency: the post-sync invariant check failed. A bug signal;
	// the transaction is aborted rather than persisting bad aggregates.
	KindConsistency Kind = "consistency"
)

// Error is the structured failure surfaced by the sync pipeline.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind, or "" for untyped errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsRetryable reports whether the agent should replay the same batch later.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindConflict || k == KindStorage
}

func validationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func consistencyError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConsistency, Message: fmt.Sprintf(format, args...)}
}
