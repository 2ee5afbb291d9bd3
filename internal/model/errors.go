package model

import "errors"

var (
	ErrItemNotFound = errors.New("catalog item not found")
	// ErrSegmentMismatch is returned when the caller's market segment differs
	// from the item's. Nothing is mutated.
	ErrSegmentMismatch = errors.New("caller segment does not match item segment")
	// ErrConflict covers lock contention, timeouts and storage failures. The
	// whole operation may be retried.
	ErrConflict        = errors.New("catalog item is busy or could not be stored")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrInvalidRole     = errors.New("unknown actor role")
)
