package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/n24q02m/wet-mcp/internal/backend"
	"github.com/n24q02m/wet-mcp/internal/storage"
	"github.com/n24q02m/wet-mcp/pkg/types"
)

// EnsureIndexer guarantees a queryable index exists before a search runs
type EnsureIndexer interface {
	EnsureIndexed(ctx context.Context, identity types.LibraryIdentity) (*types.IndexManifest, error)
}

// Config contains retrieval tuning
type Config struct {
	VectorWeight    float64 // fusion weight of the vector channel, in [0,1]
	QualityWeight   float64 // low-weight content-shape bonus added after fusion
	RerankExpansion int     // over-fetch multiplier when a reranker is configured
	MaxPerURL       int     // diversity cap per source URL in final results
	RerankTimeout   time.Duration
	CacheSize       int
	CacheTTL        time.Duration
}

func (c *Config) applyDefaults() {
	if c.VectorWeight <= 0 || c.VectorWeight > 1 {
		c.VectorWeight = 0.65
	}
	if c.QualityWeight < 0 {
		c.QualityWeight = 0
	}
	if c.RerankExpansion < 1 {
		c.RerankExpansion = 3
	}
	if c.MaxPerURL < 1 {
		c.MaxPerURL = 2
	}
	if c.RerankTimeout <= 0 {
		c.RerankTimeout = 15 * time.Second
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 1000
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
}

// Request contains parameters for a search operation
type Request struct {
	Query    string
	Library  types.LibraryIdentity
	Limit    int
	UseCache bool
}

// Response contains search results and metadata
type Response struct {
	Results     []types.SearchResult
	LexicalOnly bool // vector channel unavailable, scores are lexical only
	Reranked    bool
	Duration    time.Duration
	CacheHit    bool
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher coordinates hybrid retrieval: ensure the index exists, run the
// lexical and vector channels concurrently, fuse, optionally rerank.
type Searcher struct {
	storage  storage.Storage
	indexer  EnsureIndexer
	embedder backend.Embedder // nil disables the vector channel
	reranker backend.Reranker // nil skips the rerank stage
	cfg      Config
	log      zerolog.Logger

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// New creates a Searcher. embedder and reranker may each be nil.
func New(store storage.Storage, indexer EnsureIndexer, embedder backend.Embedder, reranker backend.Reranker, cfg Config, log zerolog.Logger) *Searcher {
	cfg.applyDefaults()
	cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{
		storage:  store,
		indexer:  indexer,
		embedder: embedder,
		reranker: reranker,
		cfg:      cfg,
		log:      log.With().Str("component", "searcher").Logger(),
		cache:    cache,
	}
}

// Search ensures the library is indexed and runs hybrid retrieval over it
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	manifest, err := s.indexer.EnsureIndexed(ctx, req.Library)
	if err != nil {
		return nil, err
	}

	// The manifest generation is part of the cache key, so a reindex
	// invalidates cached responses without explicit eviction.
	cacheKey := computeQueryHash(req, manifest.Generation)
	if req.UseCache {
		if cached := s.checkCache(cacheKey); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	// Over-fetch so the reranker sees a wider candidate pool
	candidateLimit := req.Limit
	if s.reranker != nil {
		candidateLimit = req.Limit * s.cfg.RerankExpansion
	}

	fused, lexicalOnly, err := s.retrieve(ctx, manifest, req.Query, candidateLimit)
	if err != nil {
		return nil, err
	}

	results, err := s.hydrate(ctx, fused)
	if err != nil {
		return nil, err
	}
	results = s.applyDiversityCap(results, candidateLimit)

	reranked := false
	if s.reranker != nil && len(results) > 1 {
		results, reranked = s.rerank(ctx, req.Query, results)
	}

	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	response := &Response{
		Results:     results,
		LexicalOnly: lexicalOnly,
		Reranked:    reranked,
		Duration:    time.Since(startTime),
	}

	if req.UseCache && len(results) > 0 {
		s.storeInCache(cacheKey, response)
	}
	return response, nil
}

// channelResult holds one retrieval channel's output
type channelResult struct {
	lexical []storage.TextResult
	vector  []storage.VectorResult
	err     error
}

// retrieve runs the lexical and vector channels concurrently and fuses them
func (s *Searcher) retrieve(ctx context.Context, manifest *types.IndexManifest, query string, limit int) ([]fusedResult, bool, error) {
	libraryKey := manifest.LibraryKey
	perChannel := limit * 2

	lexicalChan := make(chan channelResult, 1)
	go func() {
		var res channelResult
		res.lexical, res.err = s.storage.SearchText(ctx, libraryKey, query, perChannel)
		lexicalChan <- res
	}()

	vectorChan := make(chan channelResult, 1)
	useVector := s.embedder != nil && manifest.EmbeddingDim > 0
	if useVector {
		go func() {
			var res channelResult
			embedding, err := s.embedder.GenerateEmbedding(ctx, backend.EmbeddingRequest{Text: query})
			if err != nil {
				res.err = err
			} else {
				res.vector, res.err = s.storage.SearchVector(ctx, libraryKey, embedding.Vector, perChannel)
			}
			vectorChan <- res
		}()
	} else {
		vectorChan <- channelResult{}
	}

	var lexicalRes, vectorRes channelResult
	for done := 0; done < 2; done++ {
		select {
		case lexicalRes = <-lexicalChan:
		case vectorRes = <-vectorChan:
		case <-ctx.Done():
			return nil, false, fmt.Errorf("%w: %v", types.ErrTimeout, ctx.Err())
		}
	}

	// The vector channel is best-effort; lexical failures are fatal because
	// a lexical index always exists for an ensured library.
	if lexicalRes.err != nil {
		return nil, false, lexicalRes.err
	}
	if vectorRes.err != nil {
		s.log.Warn().Str("library", libraryKey).Err(vectorRes.err).Msg("vector channel failed, serving lexical results")
	}

	lexicalOnly := !useVector || vectorRes.err != nil || len(vectorRes.vector) == 0
	fused := fuse(lexicalRes.lexical, vectorRes.vector, s.cfg.VectorWeight)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, lexicalOnly, nil
}

// fusedResult carries a chunk through fusion with its per-channel scores
type fusedResult struct {
	chunkID string
	lexical float64 // min-max normalized
	vector  float64 // min-max normalized
	fused   float64
}

// fuse min-max normalizes both channels onto [0,1] and combines them with
// the configured vector weight. A chunk absent from a channel contributes 0
// from it. Ties break on chunk ID so ordering is deterministic.
func fuse(lexical []storage.TextResult, vector []storage.VectorResult, vectorWeight float64) []fusedResult {
	byID := make(map[string]*fusedResult, len(lexical)+len(vector))

	lexicalScores := make([]float64, len(lexical))
	for i, r := range lexical {
		lexicalScores[i] = r.BM25Score
	}
	for i, r := range lexical {
		byID[r.ChunkID] = &fusedResult{chunkID: r.ChunkID, lexical: minMax(lexicalScores, i)}
	}

	vectorScores := make([]float64, len(vector))
	for i, r := range vector {
		vectorScores[i] = r.SimilarityScore
	}
	for i, r := range vector {
		if existing, ok := byID[r.ChunkID]; ok {
			existing.vector = minMax(vectorScores, i)
		} else {
			byID[r.ChunkID] = &fusedResult{chunkID: r.ChunkID, vector: minMax(vectorScores, i)}
		}
	}

	fused := make([]fusedResult, 0, len(byID))
	for _, r := range byID {
		r.fused = vectorWeight*r.vector + (1-vectorWeight)*r.lexical
		fused = append(fused, *r)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].fused != fused[j].fused {
			return fused[i].fused > fused[j].fused
		}
		return fused[i].chunkID < fused[j].chunkID
	})
	return fused
}

// minMax normalizes scores[i] onto [0,1] within its channel. A single-result
// channel maps to 1.
func minMax(scores []float64, i int) float64 {
	lo, hi := scores[0], scores[0]
	for _, s := range scores {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	if hi == lo {
		return 1
	}
	return (scores[i] - lo) / (hi - lo)
}

// hydrate loads chunk content for the fused candidates and folds in the
// quality bonus, re-sorting since the bonus can reorder near ties.
func (s *Searcher) hydrate(ctx context.Context, fused []fusedResult) ([]types.SearchResult, error) {
	ids := make([]string, len(fused))
	byID := make(map[string]fusedResult, len(fused))
	for i, f := range fused {
		ids[i] = f.chunkID
		byID[f.chunkID] = f
	}

	chunks, err := s.storage.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(chunks))
	for _, chunk := range chunks {
		f := byID[chunk.ID]
		results = append(results, types.SearchResult{
			ChunkID:      chunk.ID,
			Title:        chunk.Title,
			HeadingPath:  chunk.HeadingPath,
			Content:      chunk.Content,
			SourceURL:    chunk.SourceURL,
			LexicalScore: f.lexical,
			VectorScore:  f.vector,
			FusedScore:   f.fused + s.cfg.QualityWeight*chunk.QualityScore,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results, nil
}

// applyDiversityCap limits how many results any single source URL can hold
func (s *Searcher) applyDiversityCap(results []types.SearchResult, limit int) []types.SearchResult {
	perURL := make(map[string]int)
	capped := make([]types.SearchResult, 0, len(results))
	for _, r := range results {
		if perURL[r.SourceURL] >= s.cfg.MaxPerURL {
			continue
		}
		perURL[r.SourceURL]++
		capped = append(capped, r)
		if len(capped) >= limit {
			break
		}
	}
	return capped
}

// rerank reorders candidates with the cross-query relevance backend. Any
// failure or timeout falls back to the fused order.
func (s *Searcher) rerank(ctx context.Context, query string, results []types.SearchResult) ([]types.SearchResult, bool) {
	rerankCtx, cancel := context.WithTimeout(ctx, s.cfg.RerankTimeout)
	defer cancel()

	documents := make([]string, len(results))
	for i, r := range results {
		documents[i] = r.Content
	}

	ranked, err := s.reranker.Rerank(rerankCtx, query, documents, len(documents))
	if err != nil || len(ranked) == 0 {
		s.log.Warn().Err(err).Msg("rerank failed, keeping fused order")
		return results, false
	}

	reordered := make([]types.SearchResult, 0, len(ranked))
	seen := make(map[int]struct{}, len(ranked))
	for _, doc := range ranked {
		if doc.Index < 0 || doc.Index >= len(results) {
			continue
		}
		if _, dup := seen[doc.Index]; dup {
			continue
		}
		seen[doc.Index] = struct{}{}
		result := results[doc.Index]
		score := doc.Score
		result.RerankScore = &score
		reordered = append(reordered, result)
	}
	// Backends may return fewer documents than asked; keep the rest in
	// fused order behind the reranked head.
	for i, result := range results {
		if _, ok := seen[i]; !ok {
			reordered = append(reordered, result)
		}
	}
	return reordered, true
}

// validateRequest ensures the search request is valid
func (s *Searcher) validateRequest(req *Request) error {
	if req.Query == "" {
		return errors.New("query cannot be empty")
	}
	if err := req.Library.Validate(); err != nil {
		return err
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Limit > 100 {
		req.Limit = 100
	}
	return nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(key [32]byte) *Response {
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(key)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(key)
		s.cacheMu.Unlock()
		return nil
	}
	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(key [32]byte, response *Response) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(s.cfg.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(key, entry)
	s.cacheMu.Unlock()
}

// PurgeCache drops every cached response
func (s *Searcher) PurgeCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// copyResponse creates a deep copy of a Response so cached entries are
// never mutated by callers.
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := &Response{
		LexicalOnly: src.LexicalOnly,
		Reranked:    src.Reranked,
		Duration:    src.Duration,
		CacheHit:    src.CacheHit,
		Results:     make([]types.SearchResult, len(src.Results)),
	}
	for i, result := range src.Results {
		dst.Results[i] = result
		if result.RerankScore != nil {
			score := *result.RerankScore
			dst.Results[i].RerankScore = &score
		}
	}
	return dst
}

// computeQueryHash computes a unique cache key for a search request bound
// to one index generation.
func computeQueryHash(req Request, generation int64) [32]byte {
	data := fmt.Sprintf("%s|%s|%d|%d", req.Query, req.Library.Key(), req.Limit, generation)
	return sha256.Sum256([]byte(data))
}
