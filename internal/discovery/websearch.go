package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	duckduckgoEndpoint = "https://html.duckduckgo.com/html/"
	searchUserAgent    = "wet-mcp/1.0 (documentation discovery)"
	maxSearchHits      = 10
)

// DuckDuckGoSearcher implements WebSearcher against the HTML (non-JS)
// endpoint, which needs no API key.
type DuckDuckGoSearcher struct {
	client *http.Client
}

// NewDuckDuckGoSearcher creates a web searcher. A nil client gets a default
// with a conservative timeout.
func NewDuckDuckGoSearcher(client *http.Client) *DuckDuckGoSearcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &DuckDuckGoSearcher{client: client}
}

var (
	resultLinkRe    = regexp.MustCompile(`(?is)<a[^>]+class="[^"]*result__a[^"]*"[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	resultSnippetRe = regexp.MustCompile(`(?is)<a[^>]+class="[^"]*result__snippet[^"]*"[^>]*>(.*?)</a>`)
	htmlTagRe       = regexp.MustCompile(`<[^>]+>`)
)

func (d *DuckDuckGoSearcher) Search(ctx context.Context, query string) ([]SearchHit, error) {
	reqURL := duckduckgoEndpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}
	return parseSearchResults(string(body)), nil
}

// parseSearchResults extracts result links and snippets from the HTML page.
// Result anchors point at a redirect URL carrying the target in the uddg
// query parameter.
func parseSearchResults(page string) []SearchHit {
	links := resultLinkRe.FindAllStringSubmatch(page, maxSearchHits)
	snippets := resultSnippetRe.FindAllStringSubmatch(page, maxSearchHits)

	hits := make([]SearchHit, 0, len(links))
	for i, m := range links {
		target := decodeRedirect(m[1])
		if target == "" {
			continue
		}
		hit := SearchHit{
			URL:   target,
			Title: stripTags(m[2]),
		}
		if i < len(snippets) {
			hit.Snippet = stripTags(snippets[i][1])
		}
		hits = append(hits, hit)
	}
	return hits
}

func decodeRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}

func stripTags(s string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(s, ""))
}
