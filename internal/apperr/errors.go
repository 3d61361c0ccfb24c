// Package apperr defines the error kinds shared across Tracelight layers.
// Callers match them with errors.Is; producers wrap them with context.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidLink rejects self-links, unknown types and duplicate
	// active (type, source, target) triples.
	ErrInvalidLink = errors.New("invalid link")
	// ErrDuplicateLink is wrapped together with ErrInvalidLink when the
	// rejection is caused by an existing link.
	ErrDuplicateLink     = errors.New("duplicate link")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrItemNotFound      = errors.New("item not found")
	// ErrInvalidDocument marks item documents that fail to parse.
	ErrInvalidDocument = errors.New("invalid item document")
	ErrLinkNotFound    = errors.New("link not found")
)
