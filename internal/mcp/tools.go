package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/n24q02m/wet-mcp/internal/searcher"
	"github.com/n24q02m/wet-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound           = -32001 // No documentation source found for the library
	ErrorCodeFetchFailed        = -32002 // Documentation source could not be fetched
	ErrorCodeBackendUnavailable = -32003 // Embedding or rerank backend failed
	ErrorCodeTimeout            = -32004 // Operation exceeded its time budget
	ErrorCodeStorage            = -32005 // Index storage failure
)

// handleDocsSearch handles the docs_search tool invocation
func (s *Server) handleDocsSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	library, ok := args["library"].(string)
	if !ok || strings.TrimSpace(library) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "library parameter is required", map[string]interface{}{
			"param":  "library",
			"reason": "missing or empty",
		})
	}

	language := getStringDefault(args, "language", "")
	version := getStringDefault(args, "version", "")
	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	identity := types.NewLibraryIdentity(library, language)
	resp, err := s.searcher.Search(ctx, searcher.Request{
		Query:    query,
		Library:  identity,
		Limit:    limit,
		UseCache: true,
	})
	if err != nil {
		return nil, mapDomainError(err)
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]interface{}{
			"rank":            r.Rank,
			"title":           r.Title,
			"heading_path":    r.HeadingPath,
			"content":         r.Content,
			"url":             r.SourceURL,
			"relevance_score": r.RelevanceScore(),
		}
	}

	response := map[string]interface{}{
		"library":      identity.Key(),
		"results":      results,
		"lexical_only": resp.LexicalOnly,
		"reranked":     resp.Reranked,
		"cache_hit":    resp.CacheHit,
		"duration_ms":  resp.Duration.Milliseconds(),
	}
	if version != "" {
		response["requested_version"] = version
		if note := s.versionNote(ctx, identity, version); note != "" {
			response["version_note"] = note
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// versionNote reports when the indexed source does not match a requested
// version pin. Discovery always indexes the latest published source, so the
// pin is advisory.
func (s *Server) versionNote(ctx context.Context, identity types.LibraryIdentity, version string) string {
	manifest, err := s.storage.GetManifest(ctx, identity.Key())
	if err != nil {
		return ""
	}
	if strings.HasSuffix(manifest.VersionMarker, ":v:"+version) {
		return ""
	}
	return fmt.Sprintf("indexed source marker %q does not match requested version %q; results reflect the latest published documentation", manifest.VersionMarker, version)
}

// handleDocsInvalidate handles the docs_invalidate tool invocation
func (s *Server) handleDocsInvalidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	library, ok := args["library"].(string)
	if !ok || strings.TrimSpace(library) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "library parameter is required", map[string]interface{}{
			"param":  "library",
			"reason": "missing or empty",
		})
	}
	language := getStringDefault(args, "language", "")

	identity := types.NewLibraryIdentity(library, language)
	if err := s.indexer.Invalidate(ctx, identity); err != nil {
		return nil, mapDomainError(err)
	}
	s.searcher.PurgeCache()

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"invalidated": true,
		"library":     identity.Key(),
	})), nil
}

// handleDocsStatus handles the docs_status tool invocation
func (s *Server) handleDocsStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, mapDomainError(err)
	}
	manifests, err := s.storage.ListManifests(ctx)
	if err != nil {
		return nil, mapDomainError(err)
	}

	libraries := make([]map[string]interface{}, len(manifests))
	for i, m := range manifests {
		libraries[i] = map[string]interface{}{
			"library":       m.LibraryKey,
			"docs_url":      m.DocsURL,
			"source":        string(m.SourceKind),
			"chunk_count":   m.ChunkCount,
			"embedding_dim": m.EmbeddingDim,
			"generation":    m.Generation,
			"indexed_at":    m.IndexedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	response := map[string]interface{}{
		"libraries": libraries,
		"statistics": map[string]interface{}{
			"library_count":  status.LibraryCount,
			"chunk_count":    status.ChunkCount,
			"embedded_count": status.EmbeddedCount,
			"index_size_mb":  fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// mapDomainError translates engine errors into MCP error codes
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return newMCPError(ErrorCodeNotFound, "no documentation source found", map[string]interface{}{"error": err.Error()})
	case errors.Is(err, types.ErrFetchFailed):
		return newMCPError(ErrorCodeFetchFailed, "documentation fetch failed", map[string]interface{}{"error": err.Error()})
	case errors.Is(err, types.ErrBackendUnavailable):
		return newMCPError(ErrorCodeBackendUnavailable, "backend unavailable", map[string]interface{}{"error": err.Error()})
	case errors.Is(err, types.ErrTimeout):
		return newMCPError(ErrorCodeTimeout, "operation timed out", map[string]interface{}{"error": err.Error()})
	case errors.Is(err, types.ErrStorage):
		return newMCPError(ErrorCodeStorage, "index storage failure", map[string]interface{}{"error": err.Error()})
	default:
		return newMCPError(ErrorCodeInternalError, "internal error", map[string]interface{}{"error": err.Error()})
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
