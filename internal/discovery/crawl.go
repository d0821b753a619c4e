package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/n24q02m/wet-mcp/internal/fetch"
	"github.com/n24q02m/wet-mcp/pkg/types"
)

// CrawlStrategy is discovery tier 4, the last resort: derive the most
// plausible root URL for the library, fetch it, and treat the fetched page
// as the seed for indexing. Confidence is capped low so any earlier tier
// that produced an acceptable candidate wins.
type CrawlStrategy struct {
	fetcher    fetch.Fetcher
	registries *RegistryStrategy
}

// NewCrawlStrategy creates the crawl fallback tier. The registry strategy
// is reused for its raw lookups: registry metadata often carries a homepage
// or repo URL even when tier 2 rejected it as a docs pointer.
func NewCrawlStrategy(fetcher fetch.Fetcher, registries *RegistryStrategy) *CrawlStrategy {
	return &CrawlStrategy{fetcher: fetcher, registries: registries}
}

func (s *CrawlStrategy) Kind() types.SourceKind {
	return types.SourceCrawlFallback
}

func (s *CrawlStrategy) Resolve(ctx context.Context, identity types.LibraryIdentity) (*types.DiscoveryCandidate, error) {
	for _, seed := range s.seedURLs(ctx, identity) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.fetcher.Fetch(ctx, seed)
		if err != nil {
			continue
		}
		if len(page.Content) < 200 {
			continue
		}
		return &types.DiscoveryCandidate{
			URL:           seed,
			Registry:      "crawl",
			Confidence:    0.4,
			VersionMarker: VersionMarker("", seed),
		}, nil
	}
	return nil, fmt.Errorf("%w: no crawlable root for %q", types.ErrNotFound, identity.Key())
}

// seedURLs collects plausible roots: registry homepage/repo first, then
// conventional docs hosts derived from the name.
func (s *CrawlStrategy) seedURLs(ctx context.Context, identity types.LibraryIdentity) []string {
	var seeds []string
	seen := make(map[string]struct{})
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || !strings.HasPrefix(raw, "http") {
			return
		}
		if _, ok := seen[raw]; ok {
			return
		}
		seen[raw] = struct{}{}
		seeds = append(seeds, raw)
	}

	if s.registries != nil {
		regs := s.registries.registries
		if identity.Language != "" {
			if name, ok := languageRegistries[identity.Language]; ok {
				regs = []Registry{s.registries.byName[name]}
			}
		}
		for _, reg := range regs {
			info, err := reg.Lookup(ctx, identity.Name)
			if err != nil {
				continue
			}
			add(info.Homepage)
			add(info.RepoURL)
			break
		}
	}

	add(fmt.Sprintf("https://%s.readthedocs.io/en/latest/", identity.Name))
	add(fmt.Sprintf("https://%s.github.io", identity.Name))
	return seeds
}
