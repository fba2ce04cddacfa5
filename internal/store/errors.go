package store

import "errors"

var (
	// ErrNotFound is returned by point reads when no record exists.
	ErrNotFound = errors.New("record not found")

	// ErrPermissionDenied is returned when a write or subscription is
	// rejected by store-side access rules. Never retried automatically.
	ErrPermissionDenied = errors.New("permission denied")
)
