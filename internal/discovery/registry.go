package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/n24q02m/wet-mcp/pkg/types"
)

// maxRegistryBody caps how much of a registry response gets read; lookup
// endpoints return kilobytes, so anything beyond this is a misbehaving server
const maxRegistryBody = 4 << 20

// RegistryInfo is the normalized result of a package registry lookup
type RegistryInfo struct {
	Name        string
	Version     string
	Description string
	Homepage    string
	DocsURL     string
	RepoURL     string
	Deprecated  bool
}

// Registry looks up a package in one ecosystem's registry
type Registry interface {
	Name() string
	Lookup(ctx context.Context, pkg string) (*RegistryInfo, error)
}

// languageRegistries routes language hints (and their common aliases) to a
// registry name.
var languageRegistries = map[string]string{
	"javascript": "npm",
	"js":         "npm",
	"typescript": "npm",
	"ts":         "npm",
	"node":       "npm",
	"nodejs":     "npm",
	"python":     "pypi",
	"py":         "pypi",
	"rust":       "crates",
	"go":         "go",
	"golang":     "go",
	"php":        "packagist",
	"ruby":       "rubygems",
	"rb":         "rubygems",
	"csharp":     "nuget",
	"c#":         "nuget",
	"dotnet":     "nuget",
}

// RegistryStrategy is discovery tier 2: language-appropriate package
// registry lookup. With a language hint only the mapped registry is
// queried; without one the registries are tried in priority order.
type RegistryStrategy struct {
	registries []Registry
	byName     map[string]Registry
}

// NewRegistryStrategy creates the registry tier over the default registry set
func NewRegistryStrategy(client *http.Client) *RegistryStrategy {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	registries := []Registry{
		&npmRegistry{client: client},
		&pypiRegistry{client: client},
		&cratesRegistry{client: client},
		&goRegistry{client: client},
		&packagistRegistry{client: client},
		&rubygemsRegistry{client: client},
		&nugetRegistry{client: client},
	}
	byName := make(map[string]Registry, len(registries))
	for _, r := range registries {
		byName[r.Name()] = r
	}
	return &RegistryStrategy{registries: registries, byName: byName}
}

func (s *RegistryStrategy) Kind() types.SourceKind {
	return types.SourcePackageRegistry
}

func (s *RegistryStrategy) Resolve(ctx context.Context, identity types.LibraryIdentity) (*types.DiscoveryCandidate, error) {
	var candidates []Registry
	if identity.Language != "" {
		name, ok := languageRegistries[identity.Language]
		if !ok {
			return nil, fmt.Errorf("%w: no registry for language %q", types.ErrNotFound, identity.Language)
		}
		candidates = []Registry{s.byName[name]}
	} else {
		candidates = s.registries
	}

	for _, reg := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := reg.Lookup(ctx, identity.Name)
		if err != nil {
			continue
		}
		candidate := s.score(identity, reg.Name(), info)
		if candidate != nil {
			return candidate, nil
		}
	}

	return nil, fmt.Errorf("%w: %q not in any registry", types.ErrNotFound, identity.Key())
}

// score converts a registry hit into a candidate with a confidence derived
// from how trustworthy its documentation pointer looks.
func (s *RegistryStrategy) score(identity types.LibraryIdentity, registry string, info *RegistryInfo) *types.DiscoveryCandidate {
	docsURL := info.DocsURL
	if docsURL == "" {
		docsURL = info.Homepage
	}
	if docsURL == "" {
		docsURL = info.RepoURL
	}
	if isPlaceholderURL(docsURL) {
		return nil
	}

	confidence := 0.5
	if info.DocsURL != "" && info.DocsURL != info.RepoURL {
		confidence += 0.2
	}
	host := urlHost(docsURL)
	if host != "" && !strings.Contains(host, "github.com") {
		confidence += 0.1
	}
	if strings.Contains(host, identity.Name) || strings.HasPrefix(host, "docs.") {
		confidence += 0.1
	}
	if info.Deprecated {
		confidence -= 0.4
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	return &types.DiscoveryCandidate{
		URL:           docsURL,
		Registry:      registry,
		RepoURL:       info.RepoURL,
		Confidence:    confidence,
		VersionMarker: VersionMarker(info.Version, docsURL),
		Description:   info.Description,
	}
}

// isPlaceholderURL rejects homepages that point back at a registry page or
// are obviously not documentation.
func isPlaceholderURL(raw string) bool {
	if raw == "" {
		return true
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return true
	}
	for _, placeholder := range []string{
		"npmjs.com/package/",
		"pypi.org/project/",
		"crates.io/crates/",
		"rubygems.org/gems/",
		"packagist.org/packages/",
		"nuget.org/packages/",
		"example.com",
	} {
		if strings.Contains(lower, placeholder) {
			return true
		}
	}
	return false
}

func urlHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// getJSON fetches a URL and decodes the JSON response into out
func getJSON(ctx context.Context, client *http.Client, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "wet-mcp/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return types.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry status %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxRegistryBody)).Decode(out)
}

// normalizeRepoURL strips VCS prefixes and suffixes from repository URLs
// ("git+https://github.com/x/y.git" becomes "https://github.com/x/y")
func normalizeRepoURL(raw string) string {
	raw = strings.TrimPrefix(raw, "git+")
	raw = strings.TrimSuffix(raw, ".git")
	raw = strings.Replace(raw, "git://", "https://", 1)
	return raw
}

type npmRegistry struct {
	client *http.Client
}

func (r *npmRegistry) Name() string { return "npm" }

func (r *npmRegistry) Lookup(ctx context.Context, pkg string) (*RegistryInfo, error) {
	// The latest-version document stays small; the full packument carries
	// every published version and runs to tens of megabytes for big packages
	var doc struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Description string `json:"description"`
		Homepage    string `json:"homepage"`
		Repository  struct {
			URL string `json:"url"`
		} `json:"repository"`
		Deprecated interface{} `json:"deprecated"`
	}
	if err := getJSON(ctx, r.client, "https://registry.npmjs.org/"+url.PathEscape(pkg)+"/latest", &doc); err != nil {
		return nil, err
	}
	return &RegistryInfo{
		Name:        doc.Name,
		Version:     doc.Version,
		Description: doc.Description,
		Homepage:    doc.Homepage,
		RepoURL:     normalizeRepoURL(doc.Repository.URL),
		Deprecated:  doc.Deprecated != nil,
	}, nil
}

type pypiRegistry struct {
	client *http.Client
}

func (r *pypiRegistry) Name() string { return "pypi" }

func (r *pypiRegistry) Lookup(ctx context.Context, pkg string) (*RegistryInfo, error) {
	var doc struct {
		Info struct {
			Name        string            `json:"name"`
			Version     string            `json:"version"`
			Summary     string            `json:"summary"`
			HomePage    string            `json:"home_page"`
			ProjectURLs map[string]string `json:"project_urls"`
			Yanked      bool              `json:"yanked"`
		} `json:"info"`
	}
	if err := getJSON(ctx, r.client, "https://pypi.org/pypi/"+url.PathEscape(pkg)+"/json", &doc); err != nil {
		return nil, err
	}

	info := &RegistryInfo{
		Name:        doc.Info.Name,
		Version:     doc.Info.Version,
		Description: doc.Info.Summary,
		Homepage:    doc.Info.HomePage,
		Deprecated:  doc.Info.Yanked,
	}
	for key, val := range doc.Info.ProjectURLs {
		switch strings.ToLower(key) {
		case "documentation", "docs":
			info.DocsURL = val
		case "homepage":
			if info.Homepage == "" {
				info.Homepage = val
			}
		case "repository", "source", "source code":
			info.RepoURL = normalizeRepoURL(val)
		}
	}
	return info, nil
}

type cratesRegistry struct {
	client *http.Client
}

func (r *cratesRegistry) Name() string { return "crates" }

func (r *cratesRegistry) Lookup(ctx context.Context, pkg string) (*RegistryInfo, error) {
	var doc struct {
		Crate struct {
			Name          string `json:"name"`
			MaxVersion    string `json:"max_stable_version"`
			NewestVersion string `json:"newest_version"`
			Description   string `json:"description"`
			Homepage      string `json:"homepage"`
			Documentation string `json:"documentation"`
			Repository    string `json:"repository"`
		} `json:"crate"`
	}
	if err := getJSON(ctx, r.client, "https://crates.io/api/v1/crates/"+url.PathEscape(pkg), &doc); err != nil {
		return nil, err
	}
	version := doc.Crate.MaxVersion
	if version == "" {
		version = doc.Crate.NewestVersion
	}
	return &RegistryInfo{
		Name:        doc.Crate.Name,
		Version:     version,
		Description: doc.Crate.Description,
		Homepage:    doc.Crate.Homepage,
		DocsURL:     doc.Crate.Documentation,
		RepoURL:     normalizeRepoURL(doc.Crate.Repository),
	}, nil
}

type goRegistry struct {
	client *http.Client
}

func (r *goRegistry) Name() string { return "go" }

func (r *goRegistry) Lookup(ctx context.Context, pkg string) (*RegistryInfo, error) {
	// Module paths pass through the proxy verbatim; bare names get the
	// canonical github guess appended by the caller's language hint flow.
	module := pkg
	if !strings.Contains(module, "/") {
		module = "github.com/" + pkg + "/" + pkg
	}
	var doc struct {
		Version string `json:"Version"`
	}
	escaped := strings.ToLower(module)
	if err := getJSON(ctx, r.client, "https://proxy.golang.org/"+escaped+"/@latest", &doc); err != nil {
		return nil, err
	}
	return &RegistryInfo{
		Name:    pkg,
		Version: doc.Version,
		DocsURL: "https://pkg.go.dev/" + module,
		RepoURL: "https://" + module,
	}, nil
}

type packagistRegistry struct {
	client *http.Client
}

func (r *packagistRegistry) Name() string { return "packagist" }

func (r *packagistRegistry) Lookup(ctx context.Context, pkg string) (*RegistryInfo, error) {
	var doc struct {
		Results []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			URL         string `json:"url"`
			Repository  string `json:"repository"`
			Abandoned   bool   `json:"abandoned"`
		} `json:"results"`
	}
	if err := getJSON(ctx, r.client, "https://packagist.org/search.json?q="+url.QueryEscape(pkg), &doc); err != nil {
		return nil, err
	}
	for _, result := range doc.Results {
		// Packagist names are vendor/package; match on the package half
		parts := strings.SplitN(result.Name, "/", 2)
		short := result.Name
		if len(parts) == 2 {
			short = parts[1]
		}
		if short != pkg && result.Name != pkg {
			continue
		}
		return &RegistryInfo{
			Name:        result.Name,
			Description: result.Description,
			Homepage:    result.URL,
			RepoURL:     normalizeRepoURL(result.Repository),
			Deprecated:  result.Abandoned,
		}, nil
	}
	return nil, types.ErrNotFound
}

type nugetRegistry struct {
	client *http.Client
}

func (r *nugetRegistry) Name() string { return "nuget" }

func (r *nugetRegistry) Lookup(ctx context.Context, pkg string) (*RegistryInfo, error) {
	// The registration index lowercases package ids
	id := strings.ToLower(pkg)
	var doc struct {
		Items []struct {
			Upper string `json:"upper"`
			Items []struct {
				CatalogEntry struct {
					ID          string `json:"id"`
					Version     string `json:"version"`
					Description string `json:"description"`
					ProjectURL  string `json:"projectUrl"`
					Listed      bool   `json:"listed"`
				} `json:"catalogEntry"`
			} `json:"items"`
		} `json:"items"`
	}
	if err := getJSON(ctx, r.client, "https://api.nuget.org/v3/registration5-semver1/"+url.PathEscape(id)+"/index.json", &doc); err != nil {
		return nil, err
	}
	if len(doc.Items) == 0 {
		return nil, types.ErrNotFound
	}
	page := doc.Items[len(doc.Items)-1]
	if len(page.Items) == 0 {
		return nil, types.ErrNotFound
	}
	entry := page.Items[len(page.Items)-1].CatalogEntry
	return &RegistryInfo{
		Name:        entry.ID,
		Version:     entry.Version,
		Description: entry.Description,
		Homepage:    entry.ProjectURL,
		Deprecated:  !entry.Listed,
	}, nil
}

type rubygemsRegistry struct {
	client *http.Client
}

func (r *rubygemsRegistry) Name() string { return "rubygems" }

func (r *rubygemsRegistry) Lookup(ctx context.Context, pkg string) (*RegistryInfo, error) {
	var doc struct {
		Name             string `json:"name"`
		Version          string `json:"version"`
		Info             string `json:"info"`
		HomepageURI      string `json:"homepage_uri"`
		DocumentationURI string `json:"documentation_uri"`
		SourceCodeURI    string `json:"source_code_uri"`
	}
	if err := getJSON(ctx, r.client, "https://rubygems.org/api/v1/gems/"+url.PathEscape(pkg)+".json", &doc); err != nil {
		return nil, err
	}
	return &RegistryInfo{
		Name:        doc.Name,
		Version:     doc.Version,
		Description: doc.Info,
		Homepage:    doc.HomepageURI,
		DocsURL:     doc.DocumentationURI,
		RepoURL:     normalizeRepoURL(doc.SourceCodeURI),
	}, nil
}
