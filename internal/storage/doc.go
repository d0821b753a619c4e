// Package storage persists indexed documentation in SQLite and serves the
// two retrieval legs of hybrid search.
//
// # Schema
//
// Two tables carry the index. manifests holds one row per library key with
// the resolved docs URL, version marker, current generation, and counts.
// chunks holds the searchable slices, each tagged with its owning library
// key and generation; embeddings are stored inline as little-endian float32
// blobs. An FTS5 external-content table over (title, heading_path, content)
// is kept in sync with triggers.
//
// # Generations
//
// A reindex never mutates live rows. ReplaceIndex writes the new chunk set
// under a bumped generation, repoints the manifest, and drops the old
// generation in a single transaction. Searches filter on the manifest's
// current generation, so concurrent readers see a complete index on either
// side of a swap. WAL mode lets those readers proceed while the swap is
// writing.
//
// # Search
//
// SearchText runs tiered FTS5 matches (exact phrase, then AND, then OR)
// with bm25 weights favoring titles and heading paths. SearchVector scans
// the generation's embedding blobs with cosine similarity in Go, which
// works identically under both the cgo and pure Go drivers.
//
// Build tags select the driver: the default build uses modernc.org/sqlite
// (no C compiler needed), cgo_sqlite switches to mattn/go-sqlite3.
package storage
