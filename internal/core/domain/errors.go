package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingMismatch indicates stored embeddings and new
	// embeddings disagree on model or dimensionality. This is a data
	// corruption condition and is fatal for the affected run.
	ErrEmbeddingMismatch = errors.New("embedding model or dimension mismatch")

	// ErrExtractionFailed indicates metadata extraction stayed invalid
	// after all bounded retries.
	ErrExtractionFailed = errors.New("metadata extraction failed validation")

	// ErrProviderUnavailable indicates the inference provider is not
	// configured or not reachable.
	ErrProviderUnavailable = errors.New("inference provider unavailable")

	// ErrEmptyContent indicates an item has no text after parsing.
	ErrEmptyContent = errors.New("item has no text content")
)
