package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/n24q02m/wet-mcp/pkg/types"
)

// SearchHit is one result from the general web-search collaborator
type SearchHit struct {
	URL     string
	Title   string
	Snippet string
}

// WebSearcher is the external web-search collaborator, used only as a
// discovery fallback.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]SearchHit, error)
}

// knownDocsHosts are domain fragments that mark dedicated documentation
// hosting, scored above generic homepages.
var knownDocsHosts = []string{
	"readthedocs.io",
	"readthedocs.org",
	"github.io",
	"gitbook.io",
	"netlify.app",
	"vercel.app",
}

// SearchStrategy is discovery tier 3: templated web search scored by
// docs-shaped URL heuristics.
type SearchStrategy struct {
	searcher WebSearcher
}

// NewSearchStrategy creates the web-search fallback tier
func NewSearchStrategy(searcher WebSearcher) *SearchStrategy {
	return &SearchStrategy{searcher: searcher}
}

func (s *SearchStrategy) Kind() types.SourceKind {
	return types.SourceSearchFallback
}

func (s *SearchStrategy) Resolve(ctx context.Context, identity types.LibraryIdentity) (*types.DiscoveryCandidate, error) {
	if s.searcher == nil {
		return nil, fmt.Errorf("%w: no web searcher configured", types.ErrNotFound)
	}

	query := identity.Name + " official documentation"
	if identity.Language != "" {
		query = identity.Name + " " + identity.Language + " documentation"
	}

	hits, err := s.searcher.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: web search: %v", types.ErrNotFound, err)
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: web search returned nothing for %q", types.ErrNotFound, identity.Key())
	}

	best := (*types.DiscoveryCandidate)(nil)
	for rank, hit := range hits {
		confidence := scoreSearchHit(identity.Name, hit, rank)
		if best == nil || confidence > best.Confidence {
			best = &types.DiscoveryCandidate{
				URL:         hit.URL,
				Registry:    "websearch",
				Confidence:  confidence,
				Description: hit.Snippet,
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no scorable search hit for %q", types.ErrNotFound, identity.Key())
	}
	best.VersionMarker = VersionMarker("", best.URL)
	return best, nil
}

// scoreSearchHit combines domain-name containment of the library token,
// path depth, and known docs-host patterns into a confidence in [0,1].
func scoreSearchHit(name string, hit SearchHit, rank int) float64 {
	u, err := url.Parse(hit.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return 0
	}
	host := strings.ToLower(u.Host)

	confidence := 0.35
	if strings.Contains(host, strings.ToLower(name)) {
		confidence += 0.25
	}
	for _, docsHost := range knownDocsHosts {
		if strings.HasSuffix(host, docsHost) {
			confidence += 0.15
			break
		}
	}
	if strings.HasPrefix(host, "docs.") || strings.Contains(u.Path, "/docs") {
		confidence += 0.1
	}

	// Deep paths are article pages, not documentation roots
	depth := len(strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' }))
	if depth > 3 {
		confidence -= 0.15
	}

	// Earlier hits carry the engine's own relevance signal
	confidence -= 0.03 * float64(rank)

	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}
