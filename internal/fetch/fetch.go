package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/n24q02m/wet-mcp/pkg/types"
)

const (
	// UserAgent identifies the crawler to documentation hosts
	UserAgent = "wet-mcp/1.0 (+https://github.com/n24q02m/wet-mcp)"

	// maxBodyBytes bounds how much of a single page is read
	maxBodyBytes = 2 << 20

	defaultHTTPTimeout = 30 * time.Second
)

// Page is the cleaned result of fetching one URL
type Page struct {
	URL     string
	Title   string
	Content string   // cleaned text/markdown
	Links   []string // absolute sub-links discovered on the page
}

// Fetcher turns a URL into cleaned text content plus discovered links.
// Implementations may fail with network or anti-bot errors, reported as
// types.ErrFetchFailed.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// HTTPFetcher fetches pages with plain HTTP. No JavaScript rendering; sites
// that require it surface as fetch failures and discovery falls through to
// other sources.
type HTTPFetcher struct {
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPFetcher creates an HTTPFetcher with a default client
func NewHTTPFetcher(log zerolog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: defaultHTTPTimeout},
		log:    log.With().Str("component", "fetch").Logger(),
	}
}

// Fetch retrieves a URL, converts HTML to markdown-ish text, strips markup
// noise, and harvests absolute links.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html, text/markdown, text/plain, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrFetchFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d for %s", types.ErrFetchFailed, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", types.ErrFetchFailed, err)
	}

	page := &Page{URL: rawURL}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") || looksLikeHTML(body) {
		page.Title = extractTitle(body)
		page.Links = extractLinks(body, rawURL)
		page.Content = htmlToText(body)
	} else {
		page.Content = string(body)
	}

	page.Content = CleanMarkdown(page.Content)

	if IsBlockedContent(page.Content) {
		f.log.Debug().Str("url", rawURL).Msg("anti-bot block page detected")
		return nil, fmt.Errorf("%w: anti-bot block at %s", types.ErrFetchFailed, rawURL)
	}
	if strings.TrimSpace(page.Content) == "" {
		return nil, fmt.Errorf("%w: empty content at %s", types.ErrFetchFailed, rawURL)
	}

	return page, nil
}

// RankLinks orders candidate links by token overlap with the query so a
// bounded crawl spends its page budget on the most promising pages. Ties
// keep the original discovery order.
func RankLinks(links []string, query string) []string {
	queryTokens := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if len(tok) > 2 {
			queryTokens[tok] = struct{}{}
		}
	}

	type scored struct {
		link  string
		score int
		pos   int
	}
	items := make([]scored, len(links))
	for i, link := range links {
		lower := strings.ToLower(link)
		score := 0
		for tok := range queryTokens {
			if strings.Contains(lower, tok) {
				score++
			}
		}
		// Docs-shaped paths beat random pages at equal query overlap
		for _, hint := range []string{"/docs/", "/guide/", "/api/", "/reference/", "/tutorial/"} {
			if strings.Contains(lower, hint) {
				score++
				break
			}
		}
		items[i] = scored{link: link, score: score, pos: i}
	}

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].score > items[b].score
	})

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.link
	}
	return out
}

// SameHost reports whether two URLs share a host, used to keep crawls on
// the documentation site they started from.
func SameHost(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return ua.Host != "" && ua.Host == ub.Host
}
