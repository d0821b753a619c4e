package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// Reranker configuration
const (
	DefaultJinaRerankModel = "jina-reranker-v2-base-multilingual"
	LocalRerankModel       = "local-reranker"

	// Rerank calls are latency-sensitive refinements, so the HTTP budget
	// is tighter than for embeddings and there is no retry loop.
	rerankHTTPTimeout = 15 * time.Second
)

// JinaReranker implements Reranker using the Jina AI rerank API
type JinaReranker struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewJinaReranker creates a new Jina AI reranker
func NewJinaReranker(apiKey string) (*JinaReranker, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}

	return &JinaReranker{
		apiKey: apiKey,
		model:  DefaultJinaRerankModel,
		httpClient: &http.Client{
			Timeout: rerankHTTPTimeout,
		},
	}, nil
}

func (j *JinaReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedDocument, error) {
	if query == "" {
		return nil, ErrEmptyText
	}
	if len(documents) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	reqBody := map[string]interface{}{
		"model":     j.model,
		"query":     query,
		"documents": documents,
		"top_n":     topN,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.jina.ai/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRerankFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: api error %d: %s", ErrRerankFailed, resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRerankFailed, err)
	}

	ranked := make([]RankedDocument, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			continue
		}
		ranked = append(ranked, RankedDocument{Index: r.Index, Score: r.RelevanceScore})
	}

	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		return ranked[a].Index < ranked[b].Index
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked, nil
}

func (j *JinaReranker) Provider() string {
	return ProviderJina
}

func (j *JinaReranker) Model() string {
	return j.model
}

func (j *JinaReranker) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}

// LocalReranker scores documents by query-token overlap. Deterministic and
// offline; a weak signal compared to a cross-encoder, but enough to keep
// reranking wired when no API key is configured.
type LocalReranker struct {
	model string
}

// NewLocalReranker creates a new local reranker
func NewLocalReranker() (*LocalReranker, error) {
	return &LocalReranker{model: LocalRerankModel}, nil
}

func (l *LocalReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedDocument, error) {
	if query == "" {
		return nil, ErrEmptyText
	}
	if len(documents) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	queryTokens := tokenize(query)

	ranked := make([]RankedDocument, len(documents))
	for i, doc := range documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ranked[i] = RankedDocument{Index: i, Score: overlapScore(queryTokens, tokenize(doc))}
	}

	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		return ranked[a].Index < ranked[b].Index
	})

	return ranked[:topN], nil
}

func (l *LocalReranker) Provider() string {
	return ProviderLocal
}

func (l *LocalReranker) Model() string {
	return l.model
}

func (l *LocalReranker) Close() error {
	return nil
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		token := strings.Trim(field, ".,;:!?()[]{}\"'`")
		if len(token) > 1 {
			tokens[token] = struct{}{}
		}
	}
	return tokens
}

// overlapScore is the fraction of query tokens present in the document.
func overlapScore(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for token := range query {
		if _, ok := doc[token]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}
