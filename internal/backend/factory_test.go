package backend

import (
	"os"
	"testing"
)

func TestDetectEmbeddingProvider(t *testing.T) {
	origJina := os.Getenv(EnvJinaAPIKey)
	origOpenAI := os.Getenv(EnvOpenAIAPIKey)
	defer func() {
		os.Setenv(EnvJinaAPIKey, origJina)
		os.Setenv(EnvOpenAIAPIKey, origOpenAI)
	}()

	tests := []struct {
		name      string
		provider  string
		jinaKey   string
		openaiKey string
		want      string
	}{
		{name: "explicit jina", provider: "jina", want: ProviderJina},
		{name: "explicit openai", provider: "openai", want: ProviderOpenAI},
		{name: "explicit local", provider: "local", want: ProviderLocal},
		{name: "jina key present", jinaKey: "test-key", want: ProviderJina},
		{name: "openai key present", openaiKey: "test-key", want: ProviderOpenAI},
		{name: "both keys, jina takes precedence", jinaKey: "k1", openaiKey: "k2", want: ProviderJina},
		{name: "no provider, no keys, local fallback", want: ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv(EnvJinaAPIKey, tt.jinaKey)
			os.Setenv(EnvOpenAIAPIKey, tt.openaiKey)

			got := DetectEmbeddingProvider(Config{EmbeddingProvider: tt.provider})
			if got != tt.want {
				t.Errorf("DetectEmbeddingProvider() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEmbedderLocalFixedDim(t *testing.T) {
	emb, err := NewEmbedder(Config{EmbeddingProvider: ProviderLocal, FixedDimension: 768})
	if err != nil {
		t.Fatalf("NewEmbedder() error = %v", err)
	}
	defer emb.Close()

	if emb.Dimension() != 768 {
		t.Errorf("Dimension() = %d, want 768", emb.Dimension())
	}
	if emb.Provider() != ProviderLocal {
		t.Errorf("Provider() = %v, want %v", emb.Provider(), ProviderLocal)
	}
}

func TestNewRerankerDisabled(t *testing.T) {
	for _, off := range []string{"off", "none", "disabled"} {
		rr, err := NewReranker(Config{RerankProvider: off})
		if err != nil {
			t.Errorf("NewReranker(%q) error = %v", off, err)
		}
		if rr != nil {
			t.Errorf("NewReranker(%q) = %v, want nil", off, rr)
		}
	}
}

func TestNewRerankerUnknownProvider(t *testing.T) {
	if _, err := NewReranker(Config{RerankProvider: "bogus"}); err == nil {
		t.Error("expected error for unknown rerank provider")
	}
}
