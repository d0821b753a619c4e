package storage

import (
	"context"
	"time"

	"github.com/n24q02m/wet-mcp/pkg/types"
)

// Storage defines the interface for persisting and querying indexed
// documentation.
type Storage interface {
	// Manifest operations
	GetManifest(ctx context.Context, libraryKey string) (*types.IndexManifest, error)
	UpsertManifest(ctx context.Context, manifest *types.IndexManifest) error
	DeleteManifest(ctx context.Context, libraryKey string) error
	ListManifests(ctx context.Context) ([]*types.IndexManifest, error)

	// Chunk operations
	InsertChunk(ctx context.Context, chunk *types.DocumentChunk) error
	GetChunk(ctx context.Context, chunkID string) (*types.DocumentChunk, error)
	GetChunks(ctx context.Context, chunkIDs []string) ([]*types.DocumentChunk, error)
	CountChunks(ctx context.Context, libraryKey string, generation int64) (int, error)
	DeleteChunksBefore(ctx context.Context, libraryKey string, generation int64) (deletedCount int, err error)
	DeleteChunksByLibrary(ctx context.Context, libraryKey string) error

	// ReplaceIndex atomically installs a new generation for a library key:
	// the chunks are inserted, the manifest row is replaced, and every chunk
	// from older generations is removed, all in one transaction. Readers see
	// either the old index or the new one, never a mix.
	ReplaceIndex(ctx context.Context, manifest *types.IndexManifest, chunks []*types.DocumentChunk) error

	// Invalidate removes the manifest and all chunks for a library key
	Invalidate(ctx context.Context, libraryKey string) error

	// Search operations, scoped to the library's current generation
	SearchText(ctx context.Context, libraryKey string, query string, limit int) ([]TextResult, error)
	SearchVector(ctx context.Context, libraryKey string, vector []float32, limit int) ([]VectorResult, error)

	// Status operations
	GetStatus(ctx context.Context) (*IndexStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// TextResult represents a result from full-text search
type TextResult struct {
	ChunkID   string
	BM25Score float64
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	ChunkID         string
	SimilarityScore float64
}

// IndexStatus contains statistics about the documentation index
type IndexStatus struct {
	LibraryCount    int
	ChunkCount      int
	EmbeddedCount   int
	IndexSizeMB     float64
	OldestIndexedAt time.Time
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}
