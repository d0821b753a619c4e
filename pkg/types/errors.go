package types

import "errors"

// Failure taxonomy. Callers branch with errors.Is; wrap with fmt.Errorf %w.
var (
	// ErrNotFound means discovery exhausted all tiers without an
	// acceptable candidate, or a lookup key has no stored row.
	ErrNotFound = errors.New("not found")

	// ErrFetchFailed means the content-extraction collaborator could not
	// produce usable content (network error, anti-bot block, empty page).
	ErrFetchFailed = errors.New("fetch failed")

	// ErrBackendUnavailable means the embedding or rerank backend is down.
	// Always absorbed locally: indexing degrades to lexical-only, search
	// falls back to fused order.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrTimeout means a step exceeded its budget.
	ErrTimeout = errors.New("operation timed out")

	// ErrStorage means a local store I/O failure. Fatal for the current
	// call; prior index state stays intact because writes are atomic.
	ErrStorage = errors.New("storage error")
)

// Validation errors for result construction.
var (
	ErrInvalidChunkID = errors.New("invalid chunk ID")
	ErrInvalidRank    = errors.New("rank must be >= 1")
	ErrEmptyContent   = errors.New("content cannot be empty")
)
