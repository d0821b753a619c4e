package types

import (
	"crypto/sha256"
	"errors"
)

// DocumentChunk is one searchable slice of a documentation page. Chunks are
// owned by exactly one manifest generation; a reindex replaces the whole set
// for a library key.
type DocumentChunk struct {
	// Identification
	ID         string
	LibraryKey string
	Generation int64

	// Content
	Title       string
	HeadingPath string // "h1 > h2 > h3" breadcrumb into the page
	Content     string
	ContentHash [32]byte // SHA-256 of Content, dedupes overlapping sources
	TokenCount  int

	// Provenance
	SourceURL  string
	ChunkIndex int // position within the source page

	// Embedding is nil when no backend was available at index time.
	// When present it always has the configured fixed width.
	Embedding []float32

	// QualityScore in [0,1], a content-shape heuristic folded into fusion
	// with low weight.
	QualityScore float64
}

// ComputeContentHash computes the SHA-256 hash of the chunk content.
func (c *DocumentChunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// ComputeTokenCount estimates tokens with the chars/4 heuristic.
func (c *DocumentChunk) ComputeTokenCount() int {
	c.TokenCount = len(c.Content) / 4
	return c.TokenCount
}

// EmbeddingText builds the text sent to the embedding backend: title and
// heading breadcrumb prepended for context, truncated to bound cost.
func (c *DocumentChunk) EmbeddingText() string {
	const maxLen = 2000
	text := c.Content
	if c.HeadingPath != "" && c.HeadingPath != c.Title {
		text = c.HeadingPath + " | " + text
	}
	if c.Title != "" {
		text = c.Title + " | " + text
	}
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return text
}

// Validate performs basic integrity checks before storage.
func (c *DocumentChunk) Validate() error {
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}
	if c.LibraryKey == "" {
		return errors.New("chunk library key is required")
	}
	var zeroHash [32]byte
	if c.ContentHash == zeroHash {
		return errors.New("content hash must be computed")
	}
	return nil
}
