package domain

import "errors"

var (
	// ErrNotFound: lookup by id or slug matched no row.
	ErrNotFound = errors.New("not found")

	// ErrSlugTaken: the store's unique slug constraint rejected an upsert.
	// The pipeline re-resolves and retries; this never reaches a caller.
	ErrSlugTaken = errors.New("slug already taken")

	// ErrInvalidPayload: the request body could not be normalized into a record.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrMissingRequiredField: no external id or no display name.
	ErrMissingRequiredField = errors.New("missing required field")
)
