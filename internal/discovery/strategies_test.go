package discovery

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n24q02m/wet-mcp/internal/fetch"
	"github.com/n24q02m/wet-mcp/pkg/types"
)

// fakeFetcher serves canned pages by URL
type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*fetch.Page, error) {
	content, ok := f.pages[rawURL]
	if !ok {
		return nil, types.ErrFetchFailed
	}
	return &fetch.Page{URL: rawURL, Content: content}, nil
}

func TestCuratedStrategyManifestHit(t *testing.T) {
	s := NewCuratedStrategy(&fakeFetcher{pages: map[string]string{}})

	got, err := s.Resolve(context.Background(), types.NewLibraryIdentity("react", ""))
	require.NoError(t, err)

	assert.Equal(t, "https://react.dev", got.URL)
	assert.GreaterOrEqual(t, got.Confidence, 0.9)
	assert.NotEmpty(t, got.VersionMarker)
}

func TestCuratedStrategyUpgradesToLLMSText(t *testing.T) {
	fullText := "# React\n\n" + strings.Repeat("useState lets a component remember values between renders. ", 10)
	s := NewCuratedStrategy(&fakeFetcher{pages: map[string]string{
		"https://react.dev/llms-full.txt": fullText,
	}})

	got, err := s.Resolve(context.Background(), types.NewLibraryIdentity("react", ""))
	require.NoError(t, err)
	assert.Equal(t, "https://react.dev/llms-full.txt", got.URL)
	assert.Equal(t, 0.95, got.Confidence)
}

func TestCuratedStrategyRejectsTOCOnlyLLMSText(t *testing.T) {
	toc := "# React\n" + strings.Repeat("- [Page](https://react.dev/page)\n", 20)
	s := NewCuratedStrategy(&fakeFetcher{pages: map[string]string{
		"https://react.dev/llms-full.txt": toc,
		"https://react.dev/llms.txt":      toc,
	}})

	got, err := s.Resolve(context.Background(), types.NewLibraryIdentity("react", ""))
	require.NoError(t, err)
	assert.Equal(t, "https://react.dev", got.URL, "TOC-only llms.txt must not be used")
}

func TestCuratedStrategyMiss(t *testing.T) {
	s := NewCuratedStrategy(nil)
	_, err := s.Resolve(context.Background(), types.NewLibraryIdentity("nonexistent-lib-zzz", ""))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRegistryStrategyScoring(t *testing.T) {
	s := NewRegistryStrategy(nil)

	tests := []struct {
		name     string
		identity types.LibraryIdentity
		info     *RegistryInfo
		wantNil  bool
		minConf  float64
		maxConf  float64
	}{
		{
			name:     "dedicated docs site",
			identity: types.NewLibraryIdentity("fastlib", "python"),
			info: &RegistryInfo{
				Version: "2.0.0",
				DocsURL: "https://docs.fastlib.dev",
				RepoURL: "https://github.com/org/fastlib",
			},
			minConf: 0.8,
			maxConf: 1.0,
		},
		{
			name:     "github repo only",
			identity: types.NewLibraryIdentity("smalllib", ""),
			info: &RegistryInfo{
				Version: "0.1.0",
				RepoURL: "https://github.com/org/smalllib",
			},
			minConf: 0.4,
			maxConf: 0.6,
		},
		{
			name:     "deprecated package",
			identity: types.NewLibraryIdentity("oldlib", ""),
			info: &RegistryInfo{
				Version:    "1.0.0",
				Homepage:   "https://oldlib.example.org",
				Deprecated: true,
			},
			minConf: 0.0,
			maxConf: ConfidenceFloor, // must fall below the floor
		},
		{
			name:     "placeholder homepage rejected",
			identity: types.NewLibraryIdentity("ghost", ""),
			info: &RegistryInfo{
				Version:  "1.0.0",
				Homepage: "https://www.npmjs.com/package/ghost",
			},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.score(tt.identity, "npm", tt.info)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.GreaterOrEqual(t, got.Confidence, tt.minConf)
			assert.LessOrEqual(t, got.Confidence, tt.maxConf)
			assert.NotEmpty(t, got.VersionMarker)
		})
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestNPMLookupUsesLatestVersionDocument(t *testing.T) {
	var gotPath string
	client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		body := `{"name":"react","version":"19.0.0","description":"UI library",` +
			`"homepage":"https://react.dev","repository":{"url":"git+https://github.com/facebook/react.git"}}`
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	})}

	reg := &npmRegistry{client: client}
	info, err := reg.Lookup(context.Background(), "react")
	require.NoError(t, err)

	// The full packument for a popular package runs to tens of megabytes;
	// lookups must hit the single-version document instead
	assert.Equal(t, "/react/latest", gotPath)
	assert.Equal(t, "19.0.0", info.Version)
	assert.Equal(t, "https://github.com/facebook/react", info.RepoURL)
	assert.False(t, info.Deprecated)
}

func TestRegistryStrategyUnknownLanguage(t *testing.T) {
	s := NewRegistryStrategy(nil)
	_, err := s.Resolve(context.Background(), types.NewLibraryIdentity("lib", "cobol"))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// fakeSearcher returns canned hits
type fakeSearcher struct {
	hits []SearchHit
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]SearchHit, error) {
	return f.hits, f.err
}

func TestSearchStrategyPicksDocsShapedURL(t *testing.T) {
	s := NewSearchStrategy(&fakeSearcher{hits: []SearchHit{
		{URL: "https://medium.com/blog/ten-things-about-hexlib-and-more-stuff"},
		{URL: "https://docs.hexlib.io/"},
		{URL: "https://news.example.com/story"},
	}})

	got, err := s.Resolve(context.Background(), types.NewLibraryIdentity("hexlib", ""))
	require.NoError(t, err)
	assert.Equal(t, "https://docs.hexlib.io/", got.URL)
	assert.GreaterOrEqual(t, got.Confidence, ConfidenceFloor)
}

func TestSearchStrategyNoSearcher(t *testing.T) {
	s := NewSearchStrategy(nil)
	_, err := s.Resolve(context.Background(), types.NewLibraryIdentity("lib", ""))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestScoreSearchHitDomainContainment(t *testing.T) {
	withName := scoreSearchHit("hexlib", SearchHit{URL: "https://hexlib.dev/"}, 0)
	without := scoreSearchHit("hexlib", SearchHit{URL: "https://random.dev/"}, 0)
	assert.Greater(t, withName, without)

	invalid := scoreSearchHit("hexlib", SearchHit{URL: "::::"}, 0)
	assert.Equal(t, 0.0, invalid)
}

func TestCrawlStrategySeedFetch(t *testing.T) {
	body := strings.Repeat("hexlib is a parsing toolkit with a small core. ", 10)
	s := NewCrawlStrategy(&fakeFetcher{pages: map[string]string{
		"https://hexlib.readthedocs.io/en/latest/": body,
	}}, nil)

	got, err := s.Resolve(context.Background(), types.NewLibraryIdentity("hexlib", ""))
	require.NoError(t, err)
	assert.Equal(t, "https://hexlib.readthedocs.io/en/latest/", got.URL)
	assert.Equal(t, 0.4, got.Confidence)
}

func TestCrawlStrategyNothingCrawlable(t *testing.T) {
	s := NewCrawlStrategy(&fakeFetcher{pages: map[string]string{}}, nil)
	_, err := s.Resolve(context.Background(), types.NewLibraryIdentity("hexlib", ""))
	assert.ErrorIs(t, err, types.ErrNotFound)
}
