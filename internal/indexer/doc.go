// Package indexer builds and maintains per-library documentation indexes.
//
// EnsureIndexed is the single entry point: it resolves the library's
// documentation source, compares the discovered version marker against the
// stored manifest, and reindexes only when stale. The pipeline is
// fetch -> chunk -> dedupe -> embed -> atomic generation swap.
//
// Failure handling is deliberately asymmetric. A fetch or discovery failure
// with a populated index serves the existing index; the same failure with no
// index propagates. An embedding failure never fails the index: the chunks
// are stored without vectors and search degrades to lexical-only until the
// next reindex.
//
// Concurrent EnsureIndexed calls for the same library key are collapsed with
// singleflight; exactly one pipeline runs and every caller gets its result.
package indexer
