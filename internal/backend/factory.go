package backend

import (
	"fmt"
	"os"
	"strings"
)

// Config holds backend selection configuration. Injected by the caller so
// tests can substitute providers without touching process environment.
type Config struct {
	EmbeddingProvider string // jina, openai, local; empty auto-detects
	RerankProvider    string // jina, local, off; empty auto-detects
	APIKey            string
	CacheSize         int
	// FixedDimension is the stored vector width. Every embedding is
	// projected (truncate or zero-pad) to this width.
	FixedDimension int
}

// NewEmbedder creates an embedder from explicit configuration.
// Auto-detection order when no provider is named: Jina key, OpenAI key,
// local fallback. The result is always wrapped to the fixed dimension.
func NewEmbedder(cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)

	var (
		emb Embedder
		err error
	)

	provider := strings.ToLower(cfg.EmbeddingProvider)
	switch provider {
	case ProviderJina:
		emb, err = NewJinaProvider(cfg.APIKey, cache)
	case ProviderOpenAI:
		emb, err = NewOpenAIProvider(cfg.APIKey, cache)
	case ProviderLocal:
		emb, err = NewLocalProvider(cache)
	case "":
		if os.Getenv(EnvJinaAPIKey) != "" {
			emb, err = NewJinaProvider("", cache)
		} else if os.Getenv(EnvOpenAIAPIKey) != "" {
			emb, err = NewOpenAIProvider("", cache)
		} else {
			emb, err = NewLocalProvider(cache)
		}
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %s", ErrUnsupportedModel, cfg.EmbeddingProvider)
	}
	if err != nil {
		return nil, err
	}

	return FixedDim(emb, cfg.FixedDimension), nil
}

// NewReranker creates a reranker from explicit configuration. Returns
// (nil, nil) when reranking is disabled.
func NewReranker(cfg Config) (Reranker, error) {
	provider := strings.ToLower(cfg.RerankProvider)
	switch provider {
	case "off", "none", "disabled":
		return nil, nil
	case ProviderJina:
		return NewJinaReranker(cfg.APIKey)
	case ProviderLocal:
		return NewLocalReranker()
	case "":
		if os.Getenv(EnvJinaAPIKey) != "" {
			return NewJinaReranker("")
		}
		return NewLocalReranker()
	default:
		return nil, fmt.Errorf("%w: unknown rerank provider %s", ErrUnsupportedModel, cfg.RerankProvider)
	}
}

// DetectEmbeddingProvider returns the provider NewEmbedder would pick for
// the given config and current environment.
func DetectEmbeddingProvider(cfg Config) string {
	if cfg.EmbeddingProvider != "" {
		return strings.ToLower(cfg.EmbeddingProvider)
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
