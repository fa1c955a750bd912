// Package errors provides error handling for strata.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints for user-facing failures
//
// Usage:
//
//	if err := store.Save(ctx, c); err != nil {
//	    return errors.Wrapf(err, "failed to save canvas %s", c.ID)
//	}
//
//	if errors.Is(err, errors.ErrDuplicateEdge) {
//	    // connection already exists
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// Sentinel errors shared across packages.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrNodeNotFound indicates an operation referenced a node id absent from the canvas
	ErrNodeNotFound = New("node not found")

	// ErrEdgeNotFound indicates an operation referenced an edge id absent from the canvas
	ErrEdgeNotFound = New("edge not found")

	// ErrSelfLoop is returned when a connection would join a node to itself
	ErrSelfLoop = New("self-loop not allowed")

	// ErrDuplicateEdge is returned when an identical (source, target, kind) edge exists
	ErrDuplicateEdge = New("duplicate edge")

	// ErrDuplicateNode is returned when inserting a node whose id is already taken
	ErrDuplicateNode = New("duplicate node id")

	// ErrStorageUnavailable indicates the persistence backend is refusing writes
	ErrStorageUnavailable = New("storage unavailable")

	// ErrIncompatibleSnapshot indicates a stored canvas uses an unsupported format version
	ErrIncompatibleSnapshot = New("incompatible snapshot version")
)

// IsNotFoundError checks if an error is or wraps any of the not-found sentinels.
func IsNotFoundError(err error) bool {
	return err != nil && IsAny(err, ErrNotFound, ErrNodeNotFound, ErrEdgeNotFound)
}

// IsPreconditionError reports whether err is a rejected graph precondition
// (self-loop, duplicate edge, duplicate node or unknown node).
func IsPreconditionError(err error) bool {
	return err != nil && IsAny(err, ErrSelfLoop, ErrDuplicateEdge, ErrDuplicateNode, ErrNodeNotFound, ErrEdgeNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
