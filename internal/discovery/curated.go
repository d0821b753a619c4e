package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/n24q02m/wet-mcp/internal/chunker"
	"github.com/n24q02m/wet-mcp/internal/fetch"
	"github.com/n24q02m/wet-mcp/pkg/types"
)

// wellKnownDocs maps library names to canonical documentation URLs that
// registries routinely get wrong (stale homepages, marketing sites, repos
// instead of docs). Checked before any network tier.
var wellKnownDocs = map[string]string{
	"react":      "https://react.dev",
	"vue":        "https://vuejs.org",
	"svelte":     "https://svelte.dev",
	"angular":    "https://angular.dev",
	"nextjs":     "https://nextjs.org",
	"next":       "https://nextjs.org",
	"express":    "https://expressjs.com",
	"django":     "https://docs.djangoproject.com",
	"flask":      "https://flask.palletsprojects.com",
	"fastapi":    "https://fastapi.tiangolo.com",
	"numpy":      "https://numpy.org/doc/stable",
	"pandas":     "https://pandas.pydata.org/docs",
	"pytorch":    "https://pytorch.org/docs/stable",
	"torch":      "https://pytorch.org/docs/stable",
	"tensorflow": "https://www.tensorflow.org/api_docs",
	"requests":   "https://requests.readthedocs.io",
	"pydantic":   "https://docs.pydantic.dev",
	"tokio":      "https://tokio.rs",
	"serde":      "https://serde.rs",
	"rails":      "https://guides.rubyonrails.org",
	"laravel":    "https://laravel.com/docs",
	"spring":     "https://docs.spring.io",
	"kubernetes": "https://kubernetes.io/docs",
	"docker":     "https://docs.docker.com",
	"terraform":  "https://developer.hashicorp.com/terraform/docs",
	"tailwind":   "https://tailwindcss.com/docs",
	"typescript": "https://www.typescriptlang.org/docs",
}

// llmsTxtPaths are probed in order at a curated docs host; llms-full.txt
// carries the actual content, llms.txt is often only an index.
var llmsTxtPaths = []string{"/llms-full.txt", "/llms.txt"}

// CuratedStrategy is discovery tier 1: a built-in manifest of canonical doc
// URLs, optionally upgraded by an llms.txt probe at the docs host.
type CuratedStrategy struct {
	fetcher fetch.Fetcher
}

// NewCuratedStrategy creates the curated-manifest tier. The fetcher may be
// nil, in which case no llms.txt probing happens.
func NewCuratedStrategy(fetcher fetch.Fetcher) *CuratedStrategy {
	return &CuratedStrategy{fetcher: fetcher}
}

func (s *CuratedStrategy) Kind() types.SourceKind {
	return types.SourceCuratedManifest
}

func (s *CuratedStrategy) Resolve(ctx context.Context, identity types.LibraryIdentity) (*types.DiscoveryCandidate, error) {
	docsURL, ok := wellKnownDocs[identity.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not in curated manifest", types.ErrNotFound, identity.Name)
	}

	candidate := &types.DiscoveryCandidate{
		URL:        docsURL,
		Registry:   "curated",
		Confidence: 0.9,
	}

	// An llms.txt with real content is the best possible source; a missing
	// or TOC-only file leaves the curated URL as-is.
	if s.fetcher != nil {
		if llmsURL, ok := s.probeLLMSText(ctx, docsURL); ok {
			candidate.URL = llmsURL
			candidate.Confidence = 0.95
		}
	}

	candidate.VersionMarker = VersionMarker("", candidate.URL)
	return candidate, nil
}

func (s *CuratedStrategy) probeLLMSText(ctx context.Context, docsURL string) (string, bool) {
	base := strings.TrimRight(docsURL, "/")
	for _, path := range llmsTxtPaths {
		page, err := s.fetcher.Fetch(ctx, base+path)
		if err != nil {
			continue
		}
		if len(page.Content) < 200 || chunker.IsTOCOnly(page.Content) {
			continue
		}
		return base + path, true
	}
	return "", false
}
