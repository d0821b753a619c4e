package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/n24q02m/wet-mcp/internal/backend"
	"github.com/n24q02m/wet-mcp/internal/chunker"
	"github.com/n24q02m/wet-mcp/internal/fetch"
	"github.com/n24q02m/wet-mcp/internal/storage"
	"github.com/n24q02m/wet-mcp/pkg/types"
)

// Resolver locates the documentation source for a library identity
type Resolver interface {
	Resolve(ctx context.Context, identity types.LibraryIdentity) (*types.DiscoveryCandidate, error)
}

// Config contains tuning for the indexing pipeline
type Config struct {
	MaxPages         int // crawl page budget per reindex, seed included
	EmbedBatchSize   int // texts per embedding request
	EmbedWorkers     int // concurrent embedding batches
	DiscoveryTimeout time.Duration
	FetchTimeout     time.Duration
	EmbedTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 64
	}
	if c.EmbedWorkers <= 0 {
		c.EmbedWorkers = 4
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = 30 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 90 * time.Second
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 60 * time.Second
	}
}

// Indexer coordinates the indexing pipeline:
// resolve -> fetch -> chunk -> dedupe -> embed -> swap.
type Indexer struct {
	storage  storage.Storage
	resolver Resolver
	fetcher  fetch.Fetcher
	chunker  *chunker.Chunker
	embedder backend.Embedder // nil runs the index lexical-only
	cfg      Config
	log      zerolog.Logger

	// group collapses concurrent EnsureIndexed calls per library key to a
	// single pipeline run; the other callers wait for its result.
	group singleflight.Group
}

// New creates an Indexer. embedder may be nil when no embedding backend is
// configured; the index is then built lexical-only.
func New(store storage.Storage, resolver Resolver, fetcher fetch.Fetcher, chk *chunker.Chunker, embedder backend.Embedder, cfg Config, log zerolog.Logger) *Indexer {
	cfg.applyDefaults()
	if chk == nil {
		chk = chunker.New()
	}
	return &Indexer{
		storage:  store,
		resolver: resolver,
		fetcher:  fetcher,
		chunker:  chk,
		embedder: embedder,
		cfg:      cfg,
		log:      log.With().Str("component", "indexer").Logger(),
	}
}

// EnsureIndexed guarantees a queryable index exists for the identity,
// reindexing only when the stored manifest is stale. Concurrent calls for
// the same library key share one pipeline run.
func (idx *Indexer) EnsureIndexed(ctx context.Context, identity types.LibraryIdentity) (*types.IndexManifest, error) {
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNotFound, err)
	}

	result, err, _ := idx.group.Do(identity.Key(), func() (interface{}, error) {
		return idx.ensure(ctx, identity)
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.IndexManifest), nil
}

// Invalidate removes the stored index for the identity. The next
// EnsureIndexed rebuilds from scratch.
func (idx *Indexer) Invalidate(ctx context.Context, identity types.LibraryIdentity) error {
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrNotFound, err)
	}
	key := identity.Key()

	// Route through the singleflight group so an invalidation never races a
	// reindex in flight for the same key.
	_, err, _ := idx.group.Do(key, func() (interface{}, error) {
		return nil, idx.storage.Invalidate(ctx, key)
	})
	if err != nil {
		return err
	}
	idx.log.Info().Str("library", key).Msg("index invalidated")
	return nil
}

func (idx *Indexer) ensure(ctx context.Context, identity types.LibraryIdentity) (*types.IndexManifest, error) {
	key := identity.Key()

	manifest, err := idx.storage.GetManifest(ctx, key)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	discoveryCtx, cancel := context.WithTimeout(ctx, idx.cfg.DiscoveryTimeout)
	candidate, err := idx.resolver.Resolve(discoveryCtx, identity)
	cancel()
	if err != nil {
		// A populated index keeps serving when re-resolution fails
		if manifest != nil && manifest.ChunkCount > 0 {
			idx.log.Warn().Str("library", key).Err(err).Msg("discovery failed, serving existing index")
			return manifest, nil
		}
		return nil, err
	}

	if manifest.Fresh(candidate.VersionMarker) {
		return manifest, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, idx.cfg.FetchTimeout)
	pages, err := idx.collectPages(fetchCtx, candidate.URL, identity.Name)
	cancel()
	if err != nil || len(pages) == 0 {
		// Fetch failure never tears down a previously good index
		if manifest != nil && manifest.ChunkCount > 0 {
			idx.log.Warn().Str("library", key).Err(err).Msg("fetch failed, preserving existing index")
			return manifest, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: no indexable content at %s", types.ErrFetchFailed, candidate.URL)
		}
		return nil, err
	}

	chunks := idx.chunkPages(pages, key)
	if len(chunks) == 0 {
		if manifest != nil && manifest.ChunkCount > 0 {
			return manifest, nil
		}
		return nil, fmt.Errorf("%w: content at %s produced no chunks", types.ErrFetchFailed, candidate.URL)
	}

	embeddingDim := 0
	if idx.embedder != nil {
		embedCtx, cancel := context.WithTimeout(ctx, idx.cfg.EmbedTimeout)
		err := idx.embedChunks(embedCtx, chunks)
		cancel()
		if err != nil {
			// Degrade to lexical-only rather than failing the index
			idx.log.Warn().Str("library", key).Err(err).Msg("embedding failed, indexing lexical-only")
			for _, chunk := range chunks {
				chunk.Embedding = nil
			}
		} else {
			embeddingDim = idx.embedder.Dimension()
		}
	}

	next := &types.IndexManifest{
		LibraryKey:    key,
		DocsURL:       candidate.URL,
		SourceKind:    candidate.SourceKind,
		VersionMarker: candidate.VersionMarker,
		Generation:    1,
		EmbeddingDim:  embeddingDim,
		IndexedAt:     time.Now(),
	}
	if manifest != nil {
		next.ID = manifest.ID
		next.Generation = manifest.Generation + 1
	}

	if err := idx.storage.ReplaceIndex(ctx, next, chunks); err != nil {
		return nil, err
	}

	idx.log.Info().
		Str("library", key).
		Str("url", candidate.URL).
		Int("pages", len(pages)).
		Int("chunks", len(chunks)).
		Int64("generation", next.Generation).
		Bool("embedded", embeddingDim > 0).
		Msg("index built")
	return next, nil
}

// collectPages fetches the seed page and, when it links onward, a depth-1
// crawl over same-host links ranked by relevance to the library name,
// bounded by the page budget.
func (idx *Indexer) collectPages(ctx context.Context, seedURL, libraryName string) ([]*fetch.Page, error) {
	seed, err := idx.fetcher.Fetch(ctx, seedURL)
	if err != nil {
		return nil, err
	}
	pages := []*fetch.Page{seed}

	var sameHost []string
	seen := map[string]struct{}{seedURL: {}}
	for _, link := range seed.Links {
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		if fetch.SameHost(seedURL, link) {
			sameHost = append(sameHost, link)
		}
	}

	for _, link := range fetch.RankLinks(sameHost, libraryName+" documentation") {
		if len(pages) >= idx.cfg.MaxPages {
			break
		}
		if err := ctx.Err(); err != nil {
			break // keep what the budget window collected
		}
		page, err := idx.fetcher.Fetch(ctx, link)
		if err != nil {
			continue
		}
		pages = append(pages, page)
	}

	return pages, nil
}

// chunkPages splits every page and drops duplicate content across pages by
// content hash, keeping the first occurrence.
func (idx *Indexer) chunkPages(pages []*fetch.Page, libraryKey string) []*types.DocumentChunk {
	var chunks []*types.DocumentChunk
	seen := make(map[[32]byte]struct{})

	for _, page := range pages {
		if chunker.IsTOCOnly(page.Content) && len(pages) > 1 {
			continue
		}
		for _, chunk := range idx.chunker.ChunkMarkdown(page.Content, page.URL, libraryKey) {
			if chunk.Title == "" {
				chunk.Title = page.Title
			}
			if _, dup := seen[chunk.ContentHash]; dup {
				continue
			}
			seen[chunk.ContentHash] = struct{}{}
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// embedChunks generates embeddings in concurrent batches and attaches them
// to the chunks in place. Any batch failure aborts the whole pass; the
// caller decides whether to degrade.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []*types.DocumentChunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.EmbedWorkers)

	for start := 0; start < len(chunks); start += idx.cfg.EmbedBatchSize {
		end := start + idx.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, chunk := range batch {
				texts[i] = chunk.EmbeddingText()
			}
			resp, err := idx.embedder.GenerateBatch(gctx, backend.BatchEmbeddingRequest{Texts: texts})
			if err != nil {
				return err
			}
			if len(resp.Embeddings) != len(batch) {
				return fmt.Errorf("%w: got %d embeddings for %d texts",
					types.ErrBackendUnavailable, len(resp.Embeddings), len(batch))
			}
			for i, emb := range resp.Embeddings {
				batch[i].Embedding = emb.Vector
			}
			return nil
		})
	}

	return g.Wait()
}
