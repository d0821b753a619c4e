package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/n24q02m/wet-mcp/internal/backend"
	"github.com/n24q02m/wet-mcp/internal/chunker"
	"github.com/n24q02m/wet-mcp/internal/config"
	"github.com/n24q02m/wet-mcp/internal/discovery"
	"github.com/n24q02m/wet-mcp/internal/fetch"
	"github.com/n24q02m/wet-mcp/internal/indexer"
	"github.com/n24q02m/wet-mcp/internal/searcher"
	"github.com/n24q02m/wet-mcp/internal/storage"
	"github.com/n24q02m/wet-mcp/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "wet-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// searchService is the slice of the searcher the tool handlers need
type searchService interface {
	Search(ctx context.Context, req searcher.Request) (*searcher.Response, error)
	PurgeCache()
}

// indexService is the slice of the indexer the tool handlers need
type indexService interface {
	Invalidate(ctx context.Context, identity types.LibraryIdentity) error
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	indexer  indexService
	searcher searchService
	lock     *flock.Flock
	log      zerolog.Logger
}

// NewServer wires storage, discovery, indexing, and retrieval from the
// loaded configuration and registers the MCP tools.
func NewServer(cfg config.Specification, log zerolog.Logger) (*Server, error) {
	dbPath := cfg.DBPath
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// One process per index. The lock file sits next to the database so a
	// second instance fails fast instead of contending for the writer.
	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("index %s is in use by another process", dbPath)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Backend failures degrade rather than abort: without an embedder the
	// engine indexes and serves lexical-only, without a reranker results
	// keep fused order.
	emb, err := backend.NewEmbedder(backend.Config{
		EmbeddingProvider: cfg.EmbeddingProvider,
		CacheSize:         cfg.EmbeddingCache,
		FixedDimension:    cfg.EmbeddingDim,
	})
	if err != nil {
		log.Warn().Err(err).Msg("embedding backend unavailable, running lexical-only")
		emb = nil
	}
	reranker, err := backend.NewReranker(backend.Config{RerankProvider: cfg.RerankProvider})
	if err != nil {
		log.Warn().Err(err).Msg("rerank backend unavailable, keeping fused order")
		reranker = nil
	}

	fetcher := fetch.NewHTTPFetcher(log)
	registries := discovery.NewRegistryStrategy(nil)
	resolver := discovery.NewResolver(log,
		discovery.NewCuratedStrategy(fetcher),
		registries,
		discovery.NewSearchStrategy(discovery.NewDuckDuckGoSearcher(nil)),
		discovery.NewCrawlStrategy(fetcher, registries),
	)

	idx := indexer.New(store, resolver, fetcher,
		chunker.NewWithLimits(cfg.MaxChunkSize, cfg.MinChunkSize, cfg.ChunkOverlap),
		emb,
		indexer.Config{
			MaxPages:         cfg.MaxPages,
			DiscoveryTimeout: cfg.DiscoveryTimeout,
			FetchTimeout:     cfg.FetchTimeout,
			EmbedTimeout:     cfg.EmbedTimeout,
		}, log)

	srch := searcher.New(store, idx, emb, reranker, searcher.Config{
		VectorWeight:    cfg.VectorWeight,
		QualityWeight:   cfg.QualityWeight,
		RerankExpansion: cfg.RerankExpansion,
		MaxPerURL:       cfg.MaxPerURL,
		RerankTimeout:   cfg.RerankTimeout,
	}, log)

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  store,
		indexer:  idx,
		searcher: srch,
		lock:     lock,
		log:      log.With().Str("component", "mcp").Logger(),
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer s.shutdown()
	return server.ServeStdio(s.mcp)
}

func (s *Server) shutdown() {
	if err := s.storage.Close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close storage")
	}
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(docsSearchTool(), s.handleDocsSearch)
	s.mcp.AddTool(docsInvalidateTool(), s.handleDocsInvalidate)
	s.mcp.AddTool(docsStatusTool(), s.handleDocsStatus)
}
