// Package types provides shared type definitions for the wet-mcp docs engine.
//
// This package defines the domain model used across components: library
// identities, discovery candidates, index manifests, document chunks, and
// search results, plus the sentinel error taxonomy.
//
// # Core Types
//
// LibraryIdentity is the normalized lookup key, optionally disambiguated by
// a language hint:
//
//	id := types.NewLibraryIdentity("redis", "python")
//	id.Key() // "redis:python"
//
// DocumentChunk represents a searchable slice of documentation:
//
//	chunk := &types.DocumentChunk{
//	    LibraryKey:  "react",
//	    Title:       "Hooks API Reference",
//	    HeadingPath: "Hooks API Reference > useState",
//	    Content:     sectionText,
//	}
//	chunk.ComputeContentHash()
//
// IndexManifest tracks the indexed state of one library key. A manifest is
// fresh only while its version marker matches the current discovery output:
//
//	if manifest.Fresh(candidate.VersionMarker) {
//	    // serve from the existing index, no network work
//	}
//
// # Errors
//
// The sentinel errors (ErrNotFound, ErrFetchFailed, ErrBackendUnavailable,
// ErrTimeout, ErrStorage) form the failure taxonomy shared by all
// components. Wrap them with fmt.Errorf("%w") and test with errors.Is.
package types
