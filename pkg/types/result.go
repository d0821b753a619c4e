package types

// SearchResult is one ranked hit from the hybrid retriever. Transient,
// never persisted.
type SearchResult struct {
	// Identification
	ChunkID string
	Rank    int // 1-based position in the result set

	// Channel scores. Lexical is the raw FTS relevance (unbounded),
	// Vector is cosine similarity in [0,1], both before normalization.
	LexicalScore float64
	VectorScore  float64

	// FusedScore combines the normalized channels; RerankScore is set only
	// when a reranking backend reordered the results.
	FusedScore  float64
	RerankScore *float64

	// Payload
	Title       string
	HeadingPath string
	Content     string
	SourceURL   string
}

// RelevanceScore returns the score callers should sort and display by:
// the rerank score when present, otherwise the fused score.
func (sr *SearchResult) RelevanceScore() float64 {
	if sr.RerankScore != nil {
		return *sr.RerankScore
	}
	return sr.FusedScore
}

// Validate checks result integrity before returning it to a caller.
func (sr *SearchResult) Validate() error {
	if sr.ChunkID == "" {
		return ErrInvalidChunkID
	}
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	if sr.Content == "" {
		return ErrEmptyContent
	}
	return nil
}
