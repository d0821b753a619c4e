// Package discovery locates a library's authoritative documentation by
// trying strategies in strict priority order:
//
//  1. Curated manifest: built-in canonical doc URLs plus llms.txt probing
//  2. Package registry: language-appropriate registry lookup (npm, PyPI,
//     crates.io, Go module proxy, Packagist, RubyGems)
//  3. Web-search fallback: templated query scored by docs-URL heuristics
//  4. Crawl fallback: fetch the most plausible root URL as the seed
//
// Each tier emits a confidence in [0,1] and a tier is accepted only at or
// above the confidence floor. Tier order outranks confidence: a curated hit
// at 0.9 beats a registry hit at 0.95 because the registry tier is never
// consulted. Exhausting every tier returns types.ErrNotFound; the resolver
// makes a single pass per call and never retries registries.
//
// Every accepted candidate carries a version marker (registry version when
// known, URL hash otherwise, always stamped with the scoring revision) that
// the indexer compares against stored manifests for staleness.
package discovery
