package files

import "errors"

// Domain errors for the files package.
var (
	// ErrOutsideRoot is returned when a path resolves outside the configured root.
	ErrOutsideRoot = errors.New("files: path is outside allowed directory")

	// ErrNotFound is returned when the target does not exist.
	ErrNotFound = errors.New("files: not found")

	// ErrNotDirectory is returned when a listing target is not a directory.
	ErrNotDirectory = errors.New("files: not a directory")

	// ErrNotRegularFile is returned when a file operation targets a directory or special file.
	ErrNotRegularFile = errors.New("files: not a regular file")

	// ErrTooLarge is returned when a file exceeds the configured download size.
	ErrTooLarge = errors.New("files: file too large")
)
