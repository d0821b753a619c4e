package types

import (
	"errors"
	"strings"
	"time"
)

// SourceKind identifies which discovery tier produced a candidate.
type SourceKind string

const (
	SourceCuratedManifest SourceKind = "curated_manifest"
	SourcePackageRegistry SourceKind = "package_registry"
	SourceSearchFallback  SourceKind = "search_fallback"
	SourceCrawlFallback   SourceKind = "crawl_fallback"
)

// LibraryIdentity is the normalized key for a library plus an optional
// language hint. The hint disambiguates name collisions across ecosystems
// ("redis" on npm vs "redis" on PyPI map to different keys).
type LibraryIdentity struct {
	Name     string
	Language string // normalized lowercase, empty if not provided
}

// NewLibraryIdentity normalizes name and language into an identity.
func NewLibraryIdentity(name, language string) LibraryIdentity {
	return LibraryIdentity{
		Name:     strings.ToLower(strings.TrimSpace(name)),
		Language: strings.ToLower(strings.TrimSpace(language)),
	}
}

// Key returns the storage key, "name" or "name:language".
func (li LibraryIdentity) Key() string {
	if li.Language == "" {
		return li.Name
	}
	return li.Name + ":" + li.Language
}

// Validate checks the identity is usable as a lookup key.
func (li LibraryIdentity) Validate() error {
	if li.Name == "" {
		return errors.New("library name cannot be empty")
	}
	return nil
}

// DiscoveryCandidate is the output of one discovery tier: where the docs
// live, how sure the tier is, and an opaque marker for staleness checks.
type DiscoveryCandidate struct {
	SourceKind SourceKind
	URL        string
	Registry   string // registry or search engine that produced the URL
	RepoURL    string // source repository, when the registry reports one
	Confidence float64
	// VersionMarker identifies the discovered source revision. A manifest
	// whose marker differs from a fresh resolve is stale.
	VersionMarker string
	Description   string
}

// IndexManifest records the indexed state of one library key. One row per
// key; replaced wholesale on reindex.
type IndexManifest struct {
	ID            string
	LibraryKey    string
	DocsURL       string
	SourceKind    SourceKind
	VersionMarker string
	Generation    int64
	ChunkCount    int
	EmbeddingDim  int // 0 when the index is lexical-only
	IndexedAt     time.Time
}

// Fresh reports whether the manifest can serve queries without reindexing
// against the given current version marker.
func (m *IndexManifest) Fresh(currentMarker string) bool {
	return m != nil && m.ChunkCount > 0 && m.VersionMarker == currentMarker
}
