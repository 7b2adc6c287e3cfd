package repository

import "errors"

var (
	// ErrNotFound reports a path with no stored document.
	ErrNotFound = errors.New("repository: path not found")

	// ErrConflict reports an optimistic concurrency failure: the caller's
	// expected version does not match the stored one. Stored content is
	// left untouched.
	ErrConflict = errors.New("repository: version mismatch")

	// ErrInvalidPath reports an empty, absolute, or traversing path.
	ErrInvalidPath = errors.New("repository: invalid path")
)
