package graph

import "errors"

var (
	// ErrNotFound is returned when a referenced id has no live record.
	ErrNotFound = errors.New("not found")

	// ErrConstraintViolation is returned when an operation would break a
	// store invariant, such as deleting a node that still has relationships.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrAmbiguousResult is returned by single-result index lookups when
	// more than one node holds the requested value.
	ErrAmbiguousResult = errors.New("ambiguous result")

	// ErrInvalidState is returned for any operation on a transaction that
	// has already been committed or rolled back.
	ErrInvalidState = errors.New("invalid transaction state")

	// ErrIOFailure is returned when the commit log cannot be written. The
	// commit that hit it has not been applied.
	ErrIOFailure = errors.New("commit log failure")

	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("store closed")
)
