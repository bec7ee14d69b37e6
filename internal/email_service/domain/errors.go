package domain

import "errors"

var (
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidBatch indicates a batch request that cannot be planned.
	ErrInvalidBatch = errors.New("invalid batch request")
	// ErrDuplicateJob indicates a queue job id that already exists.
	ErrDuplicateJob = errors.New("job id already enqueued")
)
