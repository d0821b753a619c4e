// Package searcher runs hybrid retrieval over an ensured documentation
// index.
//
// A search first guarantees the library is indexed, then runs the lexical
// (FTS5) and vector (cosine) channels concurrently. Channel scores are
// min-max normalized onto [0,1] and fused with a configurable weight
// favoring the vector channel; a small quality bonus nudges near ties
// toward content-shaped chunks. The vector channel is best-effort: if the
// index is lexical-only or the embedding backend fails, results come from
// the lexical channel alone.
//
// When a reranker is configured the searcher over-fetches by a multiplier,
// lets the reranker reorder the pool under its own timeout, and falls back
// to fused order on any failure. Final results are capped per source URL
// for diversity and cached in an LRU keyed by query, library, limit, and
// index generation, so a reindex naturally invalidates stale entries.
package searcher
