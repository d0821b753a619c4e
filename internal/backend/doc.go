// Package backend provides vector embedding and reranking over
// interchangeable providers (remote APIs or local computation).
//
// # Embedding
//
//	emb, err := backend.NewEmbedder(backend.Config{FixedDimension: 768})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, backend.BatchEmbeddingRequest{
//	    Texts: texts,
//	})
//
// Every returned vector has exactly the configured fixed width: native
// provider output is truncated or zero-padded, so the stored vector schema
// never changes when the provider does.
//
// # Provider Selection
//
// When no provider is named explicitly the factory auto-detects:
//
//  1. JINA_API_KEY set -> Jina AI (native 1024 dims)
//  2. OPENAI_API_KEY set -> OpenAI (native 1536 dims)
//  3. otherwise -> local deterministic provider (offline, 384 dims)
//
// The same selection applies to reranking (Jina rerank API or a local
// token-overlap scorer). Reranking can be disabled with provider "off".
//
// # Failure Behavior
//
// Remote calls retry transient failures with exponential backoff. Callers
// treat any residual error as backend unavailability and degrade: indexing
// proceeds lexical-only, search keeps the fused order. Nothing in this
// package makes a backend failure fatal to the operation that invoked it.
//
// # Caching
//
// Embeddings are cached in an in-process LRU keyed by the SHA-256 of the
// input text. Cache hits return deep copies so callers cannot mutate
// cached vectors.
package backend
