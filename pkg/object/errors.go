package object

import "errors"

var (
	// ErrInvalid marks validation failures: malformed paths, missing
	// mandatory fields, unsorted entries and the like.
	ErrInvalid = errors.New("invalid object")

	// ErrNotFound marks a requested id that is absent from a store.
	ErrNotFound = errors.New("object not found")
)
